// Package session owns the client-side state of one authenticated dashboard
// session: the periodic silent refresh, the webhook auto-setup loop, and the
// atomically replaced display snapshot the UI reads.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"xboard/internal/client/xboard"
	"xboard/internal/credstore"
	"xboard/internal/models"
)

const (
	DefaultPollInterval        = 15 * time.Second
	DefaultRemediationCooldown = 30 * time.Second
	DefaultRecentOrdersLimit   = 10
)

// API is the slice of the backend client the session consumes.
type API interface {
	Me(ctx context.Context, token string) (*models.UserInfo, error)
	Overview(ctx context.Context, token string) (*models.Overview, error)
	OrdersByDate(ctx context.Context, token string) ([]models.OrderByDate, error)
	TopCustomers(ctx context.Context, token string) ([]models.TopCustomer, error)
	RecentOrders(ctx context.Context, token string, limit int) ([]models.RecentOrder, error)
	WebhookStatus(ctx context.Context, token string) (*models.WebhookStatus, error)
	SetupWebhooks(ctx context.Context, token string) error
	TriggerSync(ctx context.Context, token string) error
}

type Options struct {
	API       API
	Tokens    credstore.Store
	Logger    *zap.Logger
	Scheduler Scheduler
	Clock     Clock

	// OnLogout fires exactly once per Initialize incarnation when the
	// backend rejects the credential.
	OnLogout func()

	PollInterval        time.Duration
	RemediationCooldown time.Duration
	RecentOrdersLimit   int
}

type Session struct {
	api         API
	tokens      credstore.Store
	logger      *zap.Logger
	sched       Scheduler
	clock       Clock
	onLogout    func()
	pollEvery   time.Duration
	recentLimit int

	guard *remediationGuard

	mu         sync.Mutex
	snap       models.Snapshot
	loading    bool
	refreshing bool
	live       bool
	gen        uint64
	stopPoll   func()
	logoutOnce *sync.Once

	subMu   sync.Mutex
	subs    map[int]chan models.Snapshot
	nextSub int
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RemediationCooldown <= 0 {
		opts.RemediationCooldown = DefaultRemediationCooldown
	}
	if opts.RecentOrdersLimit <= 0 {
		opts.RecentOrdersLimit = DefaultRecentOrdersLimit
	}
	return &Session{
		api:         opts.API,
		tokens:      opts.Tokens,
		logger:      opts.Logger,
		sched:       opts.Scheduler,
		clock:       opts.Clock,
		onLogout:    opts.OnLogout,
		pollEvery:   opts.PollInterval,
		recentLimit: opts.RecentOrdersLimit,
		guard:       newRemediationGuard(opts.Clock, opts.RemediationCooldown),
		logoutOnce:  new(sync.Once),
		subs:        map[int]chan models.Snapshot{},
	}
}

// Initialize performs the initial non-silent fetch and starts the recurring
// silent refresh. It returns a teardown that stops the schedule; results of
// requests still in flight at teardown are discarded on arrival. Calling
// Initialize again supersedes the previous incarnation, so two overlapping
// schedules can never exist.
func (s *Session) Initialize(ctx context.Context) func() {
	s.mu.Lock()
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.gen++
	gen := s.gen
	s.live = true
	s.logoutOnce = new(sync.Once)
	s.mu.Unlock()

	s.fetchAll(ctx, gen, false)

	stop := s.sched.Every(s.pollEvery, func() {
		s.fetchAll(ctx, gen, true)
	})

	s.mu.Lock()
	if s.live && s.gen == gen {
		s.stopPoll = stop
		stop = nil
	}
	s.mu.Unlock()
	if stop != nil {
		// Torn down (or superseded) while the initial fetch ran.
		stop()
	}

	return func() { s.teardown(gen) }
}

func (s *Session) teardown(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	stop := s.stopPoll
	s.stopPoll = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.guard.reset()
}

// FetchAll refreshes the snapshot once. Exposed for the manual-refresh path
// and tests; the periodic schedule calls the same cycle silently.
func (s *Session) FetchAll(ctx context.Context, silent bool) {
	gen, live := s.currentGen()
	if !live {
		return
	}
	s.fetchAll(ctx, gen, silent)
}

func (s *Session) fetchAll(ctx context.Context, gen uint64, silent bool) {
	token, ok := s.tokens.Token()
	if !ok {
		s.terminate(gen)
		return
	}

	if !silent {
		s.setLoading(gen, true)
		defer s.setLoading(gen, false)
	}

	var (
		user   *models.UserInfo
		ov     *models.Overview
		series []models.OrderByDate
		top    []models.TopCustomer
		recent []models.RecentOrder
		hooks  *models.WebhookStatus

		errs    [5]error
		hookErr error
	)

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		defer wg.Done()
		user, errs[0] = s.api.Me(ctx, token)
	}()
	go func() {
		defer wg.Done()
		ov, errs[1] = s.api.Overview(ctx, token)
	}()
	go func() {
		defer wg.Done()
		series, errs[2] = s.api.OrdersByDate(ctx, token)
	}()
	go func() {
		defer wg.Done()
		top, errs[3] = s.api.TopCustomers(ctx, token)
	}()
	go func() {
		defer wg.Done()
		recent, errs[4] = s.api.RecentOrders(ctx, token, s.recentLimit)
	}()
	go func() {
		defer wg.Done()
		hooks, hookErr = s.api.WebhookStatus(ctx, token)
	}()
	wg.Wait()

	for _, err := range append(errs[:], hookErr) {
		if err != nil && xboard.IsAuthError(err) {
			s.logger.Info("session credential rejected, logging out")
			s.terminate(gen)
			return
		}
	}
	for _, err := range errs {
		if err != nil {
			// Previous snapshot stays on screen.
			s.logger.Warn("fetch cycle failed", zap.Error(err))
			return
		}
	}
	if hookErr != nil {
		// Webhook status is best-effort only: render it as unknown
		// rather than failing the cycle.
		s.logger.Debug("webhook status unavailable", zap.Error(hookErr))
		hooks = nil
	}

	snap := models.Snapshot{
		User:         user,
		Overview:     ov,
		OrdersByDate: series,
		TopCustomers: top,
		RecentOrders: recent,
		Webhooks:     hooks,
		UpdatedAt:    s.clock.Now(),
	}

	s.mu.Lock()
	if !s.live || s.gen != gen {
		// Torn down while the requests were outstanding.
		s.mu.Unlock()
		return
	}
	s.snap = snap
	s.mu.Unlock()
	s.publish(snap)

	if hooks != nil && !hooks.Active && !s.guard.attempting() {
		go s.triggerRemediation(ctx, gen)
	}
}

// TriggerRemediation attempts one webhook setup. It is a no-op while a
// previous attempt is in flight or cooling down after a failure.
func (s *Session) TriggerRemediation(ctx context.Context) {
	gen, live := s.currentGen()
	if !live {
		return
	}
	s.triggerRemediation(ctx, gen)
}

func (s *Session) triggerRemediation(ctx context.Context, gen uint64) {
	if !s.guard.tryBegin() {
		return
	}
	token, ok := s.tokens.Token()
	if !ok {
		s.guard.endSuccess()
		s.terminate(gen)
		return
	}
	if err := s.api.SetupWebhooks(ctx, token); err != nil {
		s.logger.Warn("webhook setup failed, backing off", zap.Error(err))
		s.guard.endFailure()
		return
	}
	s.logger.Info("webhook setup succeeded")
	s.fetchAll(ctx, gen, true)
	s.guard.endSuccess()
}

// ManualRefresh asks the backend to re-sync from the commerce platform and
// only then re-reads the dashboard data.
func (s *Session) ManualRefresh(ctx context.Context) {
	gen, live := s.currentGen()
	if !live {
		return
	}
	s.setRefreshing(gen, true)
	defer s.setRefreshing(gen, false)

	token, ok := s.tokens.Token()
	if !ok {
		s.terminate(gen)
		return
	}
	if err := s.api.TriggerSync(ctx, token); err != nil {
		if xboard.IsAuthError(err) {
			s.logger.Info("session credential rejected, logging out")
			s.terminate(gen)
			return
		}
		// Sync is best-effort; the re-read below still shows whatever
		// the backend has.
		s.logger.Warn("sync trigger failed", zap.Error(err))
	}
	s.fetchAll(ctx, gen, false)
}

// terminate ends the current incarnation and fires the logout callback at
// most once. Safe to call from any of the concurrent per-cycle goroutines.
func (s *Session) terminate(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	stop := s.stopPoll
	s.stopPoll = nil
	once := s.logoutOnce
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.guard.reset()
	once.Do(func() {
		if s.onLogout != nil {
			s.onLogout()
		}
	})
}

func (s *Session) currentGen() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen, s.live
}

func (s *Session) setLoading(gen uint64, v bool) {
	s.mu.Lock()
	if s.gen == gen {
		s.loading = v
	}
	s.mu.Unlock()
}

func (s *Session) setRefreshing(gen uint64, v bool) {
	s.mu.Lock()
	if s.gen == gen {
		s.refreshing = v
	}
	s.mu.Unlock()
}

// Snapshot returns the last applied view.
func (s *Session) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// Active reports whether the session is initialized and not torn down or
// logged out.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Subscribe returns a channel that receives every applied snapshot. Slow
// receivers miss intermediate snapshots instead of blocking a cycle.
func (s *Session) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) publish(snap models.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
