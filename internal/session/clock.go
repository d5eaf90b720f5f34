package session

import "time"

// Clock abstracts wall time and deferred callbacks so the remediation
// cooldown is testable without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// Scheduler runs a job at a fixed interval until the returned stop func is
// called. The production implementation lives in internal/cron.
type Scheduler interface {
	Every(interval time.Duration, job func()) (stop func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

func RealClock() Clock { return realClock{} }
