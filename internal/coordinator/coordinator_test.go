package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lpetrelli/autopause/internal/domain"
	"github.com/lpetrelli/autopause/internal/registry"
	"go.uber.org/zap"
)

// fakePlayer is a thread-safe Controller test double with mutable external
// state, mirroring a real player the user can touch at any time
type fakePlayer struct {
	id domain.PlayerIdentity

	mu          sync.Mutex
	running     bool
	state       domain.PlayState
	failPause   bool
	failResume  bool
	pauseCalls  int
	resumeCalls int
	passes      int
}

func (f *fakePlayer) Identity() domain.PlayerIdentity { return f.id }

func (f *fakePlayer) BeginPass() {
	f.mu.Lock()
	f.passes++
	f.mu.Unlock()
}

func (f *fakePlayer) IsRunning(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakePlayer) PlayState(context.Context) domain.PlayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return domain.StateUnknown
	}
	return f.state
}

func (f *fakePlayer) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running || f.state != domain.StatePlaying {
		return nil
	}
	f.pauseCalls++
	if f.failPause {
		return &domain.ControlChannelError{Player: f.id, Command: "Pause"}
	}
	f.state = domain.StatePaused
	return nil
}

func (f *fakePlayer) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	if !f.running || f.state == domain.StatePlaying {
		return nil
	}
	if f.failResume {
		return &domain.ControlChannelError{Player: f.id, Command: "Play"}
	}
	f.state = domain.StatePlaying
	return nil
}

func (f *fakePlayer) snapshot() (domain.PlayState, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.pauseCalls, f.resumeCalls
}

// fakeMonitor feeds scripted transitions through the DeviceMonitor contract
type fakeMonitor struct {
	ch chan domain.DeviceTransition
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{ch: make(chan domain.DeviceTransition, 1)}
}

func (m *fakeMonitor) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (m *fakeMonitor) Stop(context.Context) error                  { return nil }
func (m *fakeMonitor) Transitions() <-chan domain.DeviceTransition { return m.ch }

func newCoordinator(t *testing.T, players ...*fakePlayer) (*Coordinator, *fakeMonitor) {
	t.Helper()

	reg := registry.New(zap.NewNop())
	for _, p := range players {
		if err := reg.Register(p); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}

	mon := newFakeMonitor()
	return New(zap.NewNop(), reg, mon), mon
}

// TestEngageDisengage_Scenario covers the reference scenario: A playing,
// B paused, C not running. Engage pauses only A; disengage resumes only A.
func TestEngageDisengage_Scenario(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying}
	b := &fakePlayer{id: "B", running: true, state: domain.StatePaused}
	c := &fakePlayer{id: "C", running: false}

	coord, _ := newCoordinator(t, a, b, c)

	coord.handleTransition(testContext(t), domain.TransitionEngaged)

	if state, calls, _ := a.snapshot(); state != domain.StatePaused || calls != 1 {
		t.Errorf("A: expected Paused after 1 pause call, got %s after %d", state, calls)
	}
	if _, calls, _ := b.snapshot(); calls != 0 {
		t.Errorf("B was already paused, expected no pause command, got %d", calls)
	}
	if _, calls, _ := c.snapshot(); calls != 0 {
		t.Errorf("C is not running, expected no pause command, got %d", calls)
	}

	managed := coord.ManagedPauses()
	if len(managed) != 1 || managed[0] != "A" {
		t.Fatalf("expected managed pauses {A}, got %v", managed)
	}

	coord.handleTransition(testContext(t), domain.TransitionDisengaged)

	if state, _, calls := a.snapshot(); state != domain.StatePlaying || calls != 1 {
		t.Errorf("A: expected Playing after 1 resume call, got %s after %d", state, calls)
	}
	if _, _, calls := b.snapshot(); calls != 0 {
		t.Errorf("B was never paused by us, expected no resume, got %d", calls)
	}
	if got := coord.ManagedPauses(); len(got) != 0 {
		t.Errorf("expected empty managed pauses, got %v", got)
	}
	if got := coord.State(); got != Idle {
		t.Errorf("coordinator should return to Idle, got %s", got)
	}
}

// TestEngage_PauseFailureNotRecorded: a pause that fails must not be
// recorded, and the later disengage must not resume that player.
func TestEngage_PauseFailureNotRecorded(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying, failPause: true}
	b := &fakePlayer{id: "B", running: true, state: domain.StatePlaying}

	coord, _ := newCoordinator(t, a, b)

	coord.handleTransition(testContext(t), domain.TransitionEngaged)

	managed := coord.ManagedPauses()
	if len(managed) != 1 || managed[0] != "B" {
		t.Fatalf("expected managed pauses {B}, got %v", managed)
	}

	coord.handleTransition(testContext(t), domain.TransitionDisengaged)

	if _, _, calls := a.snapshot(); calls != 0 {
		t.Errorf("A was never successfully paused, expected no resume, got %d", calls)
	}
	if state, _, _ := b.snapshot(); state != domain.StatePlaying {
		t.Errorf("B should have been resumed, got %s", state)
	}
}

// TestDisengage_UserAlreadyResumed: the user resumed A by hand before the
// disengage; resume is observed as a no-op and the record is cleared.
func TestDisengage_UserAlreadyResumed(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying}
	coord, _ := newCoordinator(t, a)

	coord.handleTransition(testContext(t), domain.TransitionEngaged)
	if got := coord.ManagedPauses(); len(got) != 1 {
		t.Fatalf("expected {A} managed, got %v", got)
	}

	// Manual resume behind our back
	a.mu.Lock()
	a.state = domain.StatePlaying
	a.mu.Unlock()

	coord.handleTransition(testContext(t), domain.TransitionDisengaged)

	if _, _, calls := a.snapshot(); calls != 1 {
		t.Errorf("resume should still be called once (as a no-op), got %d", calls)
	}
	if got := coord.ManagedPauses(); len(got) != 0 {
		t.Errorf("expected empty managed pauses, got %v", got)
	}
}

// TestDisengage_EmptySetIsNoop: a disengage with nothing recorded covers
// spurious or duplicate notifications.
func TestDisengage_EmptySetIsNoop(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying}
	coord, _ := newCoordinator(t, a)

	coord.handleTransition(testContext(t), domain.TransitionDisengaged)

	if _, _, calls := a.snapshot(); calls != 0 {
		t.Errorf("expected no resume calls, got %d", calls)
	}
}

// TestDisengage_ResumeFailureStaysManaged: failed resumes stay recorded and
// remain visible through ManagedPauses; no automatic retry happens.
func TestDisengage_ResumeFailureStaysManaged(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying, failResume: true}
	b := &fakePlayer{id: "B", running: true, state: domain.StatePlaying}

	coord, _ := newCoordinator(t, a, b)

	coord.handleTransition(testContext(t), domain.TransitionEngaged)
	coord.handleTransition(testContext(t), domain.TransitionDisengaged)

	managed := coord.ManagedPauses()
	if len(managed) != 1 || managed[0] != "A" {
		t.Fatalf("expected {A} to stay managed after failed resume, got %v", managed)
	}

	// A later disengage picks the leftover up once the player cooperates
	a.mu.Lock()
	a.failResume = false
	a.mu.Unlock()

	coord.handleTransition(testContext(t), domain.TransitionDisengaged)
	if got := coord.ManagedPauses(); len(got) != 0 {
		t.Errorf("expected leftover to be resumed on the next disengage, got %v", got)
	}
}

// TestEngage_WhilePausedSetNonEmpty: an engage arriving before a prior
// disengage fully resolved pauses newly playing players but leaves existing
// entries untouched (idempotent union).
func TestEngage_WhilePausedSetNonEmpty(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying, failResume: true}
	b := &fakePlayer{id: "B", running: true, state: domain.StatePaused}

	coord, _ := newCoordinator(t, a, b)

	// First engage records A; disengage fails to resume it
	coord.handleTransition(testContext(t), domain.TransitionEngaged)
	coord.handleTransition(testContext(t), domain.TransitionDisengaged)
	if got := coord.ManagedPauses(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected {A} pending, got %v", got)
	}

	// Meanwhile the user resumed A by hand and started B
	a.mu.Lock()
	a.state = domain.StatePlaying
	a.mu.Unlock()
	b.mu.Lock()
	b.state = domain.StatePlaying
	b.mu.Unlock()

	_, aPausesBefore, _ := a.snapshot()

	coord.handleTransition(testContext(t), domain.TransitionEngaged)

	if _, aPauses, _ := a.snapshot(); aPauses != aPausesBefore {
		t.Errorf("A is already recorded and must not be paused again, calls %d -> %d",
			aPausesBefore, aPauses)
	}
	if state, pauses, _ := b.snapshot(); state != domain.StatePaused || pauses != 1 {
		t.Errorf("B: expected Paused after 1 call, got %s after %d", state, pauses)
	}

	managed := coord.ManagedPauses()
	if len(managed) != 2 {
		t.Errorf("expected {A B} managed, got %v", managed)
	}
}

// TestEngage_BeginsFreshPassOnAllHandles verifies per-pass cache reset
// reaches every handle, playing or not.
func TestEngage_BeginsFreshPassOnAllHandles(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying}
	b := &fakePlayer{id: "B", running: false}

	coord, _ := newCoordinator(t, a, b)
	coord.handleTransition(testContext(t), domain.TransitionEngaged)

	a.mu.Lock()
	aPasses := a.passes
	a.mu.Unlock()
	b.mu.Lock()
	bPasses := b.passes
	b.mu.Unlock()

	if aPasses != 1 || bPasses != 1 {
		t.Errorf("expected one BeginPass per handle, got A=%d B=%d", aPasses, bPasses)
	}
}

func TestIsPlayerKnown(t *testing.T) {
	a := &fakePlayer{id: "A"}
	coord, _ := newCoordinator(t, a)

	if !coord.IsPlayerKnown("A") {
		t.Error("A should be known")
	}
	if coord.IsPlayerKnown("Z") {
		t.Error("Z should not be known")
	}
}

// TestRun_ProcessesTransitionsFromMonitor exercises the loop end to end
// with a scripted monitor.
func TestRun_ProcessesTransitionsFromMonitor(t *testing.T) {
	a := &fakePlayer{id: "A", running: true, state: domain.StatePlaying}
	coord, mon := newCoordinator(t, a)

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	mon.ch <- domain.TransitionEngaged

	waitFor(t, func() bool {
		state, _, _ := a.snapshot()
		return state == domain.StatePaused
	}, "player should be paused after the engage event")

	mon.ch <- domain.TransitionDisengaged

	waitFor(t, func() bool {
		state, _, _ := a.snapshot()
		return state == domain.StatePlaying
	}, "player should be resumed after the disengage event")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should exit when the context is cancelled")
	}
}

// TestRun_ExitsOnClosedChannel verifies the loop ends when the monitor
// closes its channel.
func TestRun_ExitsOnClosedChannel(t *testing.T) {
	coord, mon := newCoordinator(t)

	done := make(chan struct{})
	go func() {
		coord.Run(testContext(t))
		close(done)
	}()

	close(mon.ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should exit when the transitions channel closes")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
