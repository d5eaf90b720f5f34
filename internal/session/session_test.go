package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"xboard/internal/client/xboard"
	"xboard/internal/credstore"
	"xboard/internal/models"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type manualScheduler struct {
	mu   sync.Mutex
	jobs map[int]func()
	next int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: map[int]func(){}}
}

func (s *manualScheduler) Every(interval time.Duration, job func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.jobs[id] = job
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.jobs, id)
	}
}

func (s *manualScheduler) Fire() {
	s.mu.Lock()
	jobs := make([]func(), 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()
	for _, j := range jobs {
		j()
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	meErr, overviewErr, seriesErr, topErr, recentErr, hookErr error
	setupErr, syncErr                                         error

	overview models.Overview
	hooks    *models.WebhookStatus

	setupCalls int
	syncCalls  int

	setupStarted chan struct{}
	setupRelease chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		overview: models.Overview{
			TotalCustomers: "12",
			TotalOrders:    "4",
			TotalRevenue:   "1000",
			Currency:       "USD",
		},
		hooks: &models.WebhookStatus{Active: true, EventCount: 3},
	}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeAPI) Me(ctx context.Context, token string) (*models.UserInfo, error) {
	f.record("me")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &models.UserInfo{Email: "owner@shop.dev", ShopDomain: "demo.myshopify.com", Status: "active"}, nil
}

func (f *fakeAPI) Overview(ctx context.Context, token string) (*models.Overview, error) {
	f.record("overview")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	ov := f.overview
	return &ov, nil
}

func (f *fakeAPI) OrdersByDate(ctx context.Context, token string) ([]models.OrderByDate, error) {
	f.record("orders-by-date")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seriesErr != nil {
		return nil, f.seriesErr
	}
	return []models.OrderByDate{{Date: "2024-05-30", Orders: 2, Revenue: "400"}}, nil
}

func (f *fakeAPI) TopCustomers(ctx context.Context, token string) ([]models.TopCustomer, error) {
	f.record("top-customers")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topErr != nil {
		return nil, f.topErr
	}
	return []models.TopCustomer{{Email: "best@buyer.dev", Name: "Best Buyer", OrderCount: 9, TotalSpent: "900"}}, nil
}

func (f *fakeAPI) RecentOrders(ctx context.Context, token string, limit int) ([]models.RecentOrder, error) {
	f.record("recent-orders")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return []models.RecentOrder{{ID: 1, ShopifyOrderID: "1001", TotalPrice: "250", Currency: "USD"}}, nil
}

func (f *fakeAPI) WebhookStatus(ctx context.Context, token string) (*models.WebhookStatus, error) {
	f.record("webhook-status")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hookErr != nil {
		return nil, f.hookErr
	}
	if f.hooks == nil {
		return nil, errors.New("no status")
	}
	h := *f.hooks
	return &h, nil
}

func (f *fakeAPI) SetupWebhooks(ctx context.Context, token string) error {
	f.record("setup-webhooks")
	f.mu.Lock()
	f.setupCalls++
	started := f.setupStarted
	release := f.setupRelease
	err := f.setupErr
	f.mu.Unlock()
	if started != nil {
		close(started)
		f.mu.Lock()
		f.setupStarted = nil
		f.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeAPI) TriggerSync(ctx context.Context, token string) error {
	f.record("sync")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return f.syncErr
}

func (f *fakeAPI) setupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setupCalls
}

type testRig struct {
	sess        *Session
	api         *fakeAPI
	clock       *fakeClock
	sched       *manualScheduler
	logoutMu    sync.Mutex
	logoutCount int
}

func newTestRig() *testRig {
	rig := &testRig{
		api:   newFakeAPI(),
		clock: newFakeClock(),
		sched: newManualScheduler(),
	}
	rig.sess = New(Options{
		API:       rig.api,
		Tokens:    credstore.NewMemoryStore("tok-1"),
		Scheduler: rig.sched,
		Clock:     rig.clock,
		OnLogout: func() {
			rig.logoutMu.Lock()
			rig.logoutCount++
			rig.logoutMu.Unlock()
		},
	})
	return rig
}

func (r *testRig) logouts() int {
	r.logoutMu.Lock()
	defer r.logoutMu.Unlock()
	return r.logoutCount
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func authErr() error {
	return &xboard.APIError{Status: http.StatusUnauthorized, Body: "expired"}
}

func TestInitializeAppliesFullSnapshot(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	snap := rig.sess.Snapshot()
	if snap.User == nil || snap.User.ShopDomain != "demo.myshopify.com" {
		t.Fatalf("user not applied: %+v", snap.User)
	}
	if snap.Overview == nil || snap.Overview.TotalRevenue != "1000" {
		t.Fatalf("overview not applied: %+v", snap.Overview)
	}
	if len(snap.OrdersByDate) != 1 || len(snap.TopCustomers) != 1 || len(snap.RecentOrders) != 1 {
		t.Fatalf("series not applied: %+v", snap)
	}
	if snap.Webhooks == nil || !snap.Webhooks.Active {
		t.Fatalf("webhook status not applied: %+v", snap.Webhooks)
	}
	if !snap.UpdatedAt.Equal(rig.clock.Now()) {
		t.Fatalf("updated_at=%v want=%v", snap.UpdatedAt, rig.clock.Now())
	}
	if rig.sched.Active() != 1 {
		t.Fatalf("active schedules=%d want=1", rig.sched.Active())
	}
}

func TestWebhookStatusFailureSubstitutesNil(t *testing.T) {
	rig := newTestRig()
	rig.api.hookErr = errors.New("status endpoint down")
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	snap := rig.sess.Snapshot()
	if snap.Overview == nil || snap.User == nil {
		t.Fatalf("mandatory entities missing: %+v", snap)
	}
	if snap.Webhooks != nil {
		t.Fatalf("webhooks=%+v want=nil", snap.Webhooks)
	}
	if !rig.sess.Active() {
		t.Fatal("session should stay active")
	}
}

func TestMandatoryFailureRetainsPreviousSnapshot(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()
	before := rig.sess.Snapshot()

	rig.api.mu.Lock()
	rig.api.overviewErr = errors.New("upstream 500")
	rig.api.mu.Unlock()
	rig.clock.Advance(time.Second)
	rig.sched.Fire()

	after := rig.sess.Snapshot()
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("snapshot advanced despite failed cycle: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
	if after.Overview == nil || after.Overview.TotalRevenue != "1000" {
		t.Fatalf("previous overview lost: %+v", after.Overview)
	}
	if !rig.sess.Active() {
		t.Fatal("non-auth failure must not end the session")
	}
	if rig.logouts() != 0 {
		t.Fatalf("logouts=%d want=0", rig.logouts())
	}
}

func TestAuthFailureLogsOutExactlyOnce(t *testing.T) {
	rig := newTestRig()
	rig.api.meErr = authErr()
	rig.api.topErr = authErr()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	if rig.logouts() != 1 {
		t.Fatalf("logouts=%d want=1", rig.logouts())
	}
	if rig.sess.Active() {
		t.Fatal("session should be terminated")
	}
	if rig.sched.Active() != 0 {
		t.Fatalf("poll schedule still active after logout")
	}
}

func TestSilentCycleAuthFailureLogsOut(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	rig.api.mu.Lock()
	rig.api.recentErr = &xboard.APIError{Status: http.StatusForbidden, Body: "nope"}
	rig.api.mu.Unlock()
	rig.sched.Fire()

	if rig.logouts() != 1 {
		t.Fatalf("logouts=%d want=1", rig.logouts())
	}
	if rig.sess.Active() {
		t.Fatal("session should be terminated")
	}
}

func TestTeardownStopsPolling(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	teardown()

	if rig.sched.Active() != 0 {
		t.Fatalf("active schedules=%d want=0 after teardown", rig.sched.Active())
	}
	rig.api.resetCalls()
	rig.sched.Fire()
	if len(rig.api.callLog()) != 0 {
		t.Fatalf("fetch happened after teardown: %v", rig.api.callLog())
	}
}

func TestReinitializeDoesNotStackTimers(t *testing.T) {
	rig := newTestRig()
	_ = rig.sess.Initialize(context.Background())
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	if rig.sched.Active() != 1 {
		t.Fatalf("active schedules=%d want=1 after re-init", rig.sched.Active())
	}
}

func TestInactiveWebhooksTriggerSetupAutomatically(t *testing.T) {
	rig := newTestRig()
	rig.api.hooks = &models.WebhookStatus{Active: false}
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	waitUntil(t, "setup request", func() bool { return rig.api.setupCount() == 1 })
	// After a successful setup the guard must reopen.
	waitUntil(t, "guard idle", func() bool { return !rig.sess.guard.attempting() })
}

func TestRemediationIsSingleFlight(t *testing.T) {
	rig := newTestRig()
	started := make(chan struct{})
	release := make(chan struct{})
	rig.api.setupStarted = started
	rig.api.setupRelease = release
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	go rig.sess.TriggerRemediation(context.Background())
	<-started
	// Second trigger while the first is in flight must be a no-op.
	rig.sess.TriggerRemediation(context.Background())
	close(release)

	waitUntil(t, "guard idle", func() bool { return !rig.sess.guard.attempting() })
	if got := rig.api.setupCount(); got != 1 {
		t.Fatalf("setup calls=%d want=1", got)
	}
}

func TestRemediationFailureEnforcesCooldown(t *testing.T) {
	rig := newTestRig()
	rig.api.setupErr = errors.New("store not provisioned")
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	rig.sess.TriggerRemediation(context.Background())
	if got := rig.api.setupCount(); got != 1 {
		t.Fatalf("setup calls=%d want=1", got)
	}

	// Before the cooldown elapses, further attempts are suppressed.
	rig.clock.Advance(29 * time.Second)
	rig.sess.TriggerRemediation(context.Background())
	if got := rig.api.setupCount(); got != 1 {
		t.Fatalf("setup calls=%d want=1 during cooldown", got)
	}

	rig.clock.Advance(time.Second)
	rig.sess.TriggerRemediation(context.Background())
	if got := rig.api.setupCount(); got != 2 {
		t.Fatalf("setup calls=%d want=2 after cooldown", got)
	}
}

func TestManualRefreshSyncsBeforeFetching(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()
	rig.api.resetCalls()

	rig.sess.ManualRefresh(context.Background())

	calls := rig.api.callLog()
	if len(calls) == 0 || calls[0] != "sync" {
		t.Fatalf("calls=%v want sync first", calls)
	}
	fetchSeen := false
	for _, call := range calls[1:] {
		if call == "sync" {
			t.Fatalf("sync issued twice: %v", calls)
		}
		fetchSeen = true
	}
	if !fetchSeen {
		t.Fatalf("no fetch after sync: %v", calls)
	}
	if rig.sess.Refreshing() {
		t.Fatal("refreshing flag not cleared")
	}
}

func TestManualRefreshAuthFailureLogsOut(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	rig.api.mu.Lock()
	rig.api.syncErr = authErr()
	rig.api.mu.Unlock()
	rig.sess.ManualRefresh(context.Background())

	if rig.logouts() != 1 {
		t.Fatalf("logouts=%d want=1", rig.logouts())
	}
	if rig.sess.Active() {
		t.Fatal("session should be terminated")
	}
	if rig.sess.Refreshing() {
		t.Fatal("refreshing flag not cleared")
	}
}

func TestManualRefreshSurvivesNonAuthSyncFailure(t *testing.T) {
	rig := newTestRig()
	teardown := rig.sess.Initialize(context.Background())
	defer teardown()
	before := rig.sess.Snapshot().UpdatedAt

	rig.api.mu.Lock()
	rig.api.syncErr = errors.New("sync queue busy")
	rig.api.mu.Unlock()
	rig.clock.Advance(time.Second)
	rig.sess.ManualRefresh(context.Background())

	after := rig.sess.Snapshot().UpdatedAt
	if !after.After(before) {
		t.Fatalf("refetch did not run after sync failure: %v -> %v", before, after)
	}
	if !rig.sess.Active() {
		t.Fatal("session should stay active")
	}
}

func TestSubscribeReceivesAppliedSnapshots(t *testing.T) {
	rig := newTestRig()
	updates, cancel := rig.sess.Subscribe()
	defer cancel()

	teardown := rig.sess.Initialize(context.Background())
	defer teardown()

	select {
	case snap := <-updates:
		if snap.Overview == nil {
			t.Fatalf("empty snapshot published: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}
