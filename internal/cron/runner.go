package cronrunner

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner drives the session's recurring silent refresh. It satisfies
// session.Scheduler.
type Runner struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Runner {
	return &Runner{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Every schedules job at a fixed interval and returns a stop func that
// removes the entry. The first run happens one interval after scheduling.
func (r *Runner) Every(interval time.Duration, job func()) func() {
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), job)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("schedule failed", zap.Duration("interval", interval), zap.Error(err))
		}
		return func() {}
	}
	return func() { r.cron.Remove(id) }
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
