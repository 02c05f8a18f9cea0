package grant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/store"
)

var t0 = time.Date(2024, 8, 24, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	revoked []Grant
	events  []Event
	fail    map[string]error
}

func (r *recorder) Revoke(ctx context.Context, g Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, g)
	return r.fail[g.Subject]
}

func (r *recorder) Notify(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTracker() (*Tracker, *recorder, *clock) {
	rec := &recorder{fail: map[string]error{}}
	c := &clock{now: t0}
	return NewTracker("daypass", store.NewMemory(), rec, WithNotifier(rec), WithClock(c.Now)), rec, c
}

func TestGrant_ListActiveContainsNewGrant(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker()

	if _, err := tracker.Grant(ctx, "42", "7", 2*time.Hour, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	active, err := tracker.ListActive(ctx, "7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].Subject != "42" || active[0].Scope != "7" {
		t.Fatalf("unexpected active grants %+v", active)
	}
	if !active[0].Expiry.Equal(t0.Add(2 * time.Hour)) {
		t.Fatalf("expected expiry %s, got %s", t0.Add(2*time.Hour), active[0].Expiry)
	}
}

func TestGrant_SecondGrantIsRejectedAndStateUnchanged(t *testing.T) {
	ctx := context.Background()
	tracker, _, c := newTracker()

	first, _ := tracker.Grant(ctx, "42", "7", time.Hour, nil)
	c.now = c.now.Add(10 * time.Minute)
	_, err := tracker.Grant(ctx, "42", "7", 5*time.Hour, nil)
	if !errors.Is(err, common.ErrAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}

	active, _ := tracker.ListActive(ctx, "7")
	if len(active) != 1 || !active[0].Expiry.Equal(first.Expiry) {
		t.Fatalf("failed grant modified the state: %+v", active)
	}
}

func TestGrant_SameSubjectInAnotherScope(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker()

	if _, err := tracker.Grant(ctx, "42", "7", time.Hour, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := tracker.Grant(ctx, "42", "8", time.Hour, nil); err != nil {
		t.Fatalf("grant in another scope should be independent: %v", err)
	}
}

func TestGrant_ExpiredButUnsweptIsReplaced(t *testing.T) {
	ctx := context.Background()
	tracker, _, c := newTracker()

	tracker.Grant(ctx, "42", "7", time.Hour, nil)
	c.now = t0.Add(time.Hour)
	g, err := tracker.Grant(ctx, "42", "7", time.Hour, nil)
	if err != nil {
		t.Fatalf("expected expired grant to be replaced, got %v", err)
	}
	active, _ := tracker.ListActive(ctx, "7")
	if len(active) != 1 || !active[0].Expiry.Equal(g.Expiry) {
		t.Fatalf("unexpected grants after replacement %+v", active)
	}
}

func TestGrant_RejectsNonPositiveDuration(t *testing.T) {
	tracker, _, _ := newTracker()
	if _, err := tracker.Grant(context.Background(), "42", "7", 0, nil); err == nil {
		t.Fatalf("expected error for zero duration")
	}
}

func TestGrant_AtMostOnePerSubjectUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.Grant(ctx, "42", "7", time.Hour, nil); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	active, _ := tracker.ListActive(ctx, "7")
	if successes != 1 || len(active) != 1 {
		t.Fatalf("expected exactly one grant, got %d successes and %d tracked", successes, len(active))
	}
}

func TestSweepExpired_BeforeExpiryIsNoop(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", 2*time.Hour, nil)
	tracker.Grant(ctx, "43", "8", 3*time.Hour, nil)

	removed, err := tracker.SweepExpired(ctx, t0.Add(time.Hour))
	if err != nil || removed != 0 {
		t.Fatalf("expected nothing swept, got %d %v", removed, err)
	}
	if len(rec.revoked) != 0 || len(rec.events) != 0 {
		t.Fatalf("expected no external calls, got %d revokes and %d events", len(rec.revoked), len(rec.events))
	}
}

func TestSweepExpired_EndToEnd(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()

	tracker.Grant(ctx, "42", "7", 2*time.Hour, nil)

	active, _ := tracker.ListActive(ctx, "7")
	if len(active) != 1 || active[0].Subject != "42" || !active[0].Expiry.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("unexpected active grants %+v", active)
	}

	tracker.SweepExpired(ctx, t0.Add(time.Hour))
	active, _ = tracker.ListActive(ctx, "7")
	if len(active) != 1 {
		t.Fatalf("grant removed before its expiry")
	}

	removed, err := tracker.SweepExpired(ctx, t0.Add(2*time.Hour+time.Second))
	if err != nil || removed != 1 {
		t.Fatalf("expected one grant swept, got %d %v", removed, err)
	}
	active, _ = tracker.ListActive(ctx, "7")
	if len(active) != 0 {
		t.Fatalf("expected no grants left, got %+v", active)
	}
	if len(rec.revoked) != 1 || rec.revoked[0].Subject != "42" || rec.revoked[0].Scope != "7" {
		t.Fatalf("expected one revoke for 42 in 7, got %+v", rec.revoked)
	}
	if len(rec.events) != 1 || rec.events[0].Kind != EventExpired {
		t.Fatalf("expected one expired event, got %+v", rec.events)
	}
}

func TestSweepExpired_ExactExpiryCounts(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", time.Hour, nil)

	tracker.SweepExpired(ctx, t0.Add(time.Hour))
	if len(rec.revoked) != 1 {
		t.Fatalf("expected grant to expire at its expiry instant")
	}
}

func TestSweepExpired_SecondSweepDoesNotRevokeAgain(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", time.Hour, nil)

	tracker.SweepExpired(ctx, t0.Add(2*time.Hour))
	tracker.SweepExpired(ctx, t0.Add(3*time.Hour))
	if len(rec.revoked) != 1 || len(rec.events) != 1 {
		t.Fatalf("expected a single revoke and event, got %d and %d", len(rec.revoked), len(rec.events))
	}
}

func TestSweepExpired_FailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	rec.fail["1"] = fmt.Errorf("%w: rate limited", common.ErrTransientIO)
	rec.fail["2"] = common.ErrUnknownMember

	for _, subject := range []string{"1", "2", "3"} {
		tracker.Grant(ctx, subject, "7", time.Hour, nil)
	}
	tracker.Grant(ctx, "4", "8", time.Hour, nil)

	removed, err := tracker.SweepExpired(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("revoke failures must not surface from the sweep: %v", err)
	}
	if removed != 4 || len(rec.revoked) != 4 {
		t.Fatalf("expected 4 grants swept and revoked, got %d and %d", removed, len(rec.revoked))
	}
	// Only the successful revokes are announced
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 expired events, got %+v", rec.events)
	}
	for _, scope := range []string{"7", "8"} {
		active, _ := tracker.ListActive(ctx, scope)
		if len(active) != 0 {
			t.Fatalf("failed revokes must still remove the record, scope %s has %+v", scope, active)
		}
	}
}

func TestSweepExpired_NotHeldIsSilent(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	rec.fail["42"] = fmt.Errorf("role gone: %w", ErrNotHeld)
	tracker.Grant(ctx, "42", "7", time.Hour, nil)
	tracker.Grant(ctx, "43", "7", time.Hour, nil)

	removed, err := tracker.SweepExpired(ctx, t0.Add(time.Hour))
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 grants swept, got %d %v", removed, err)
	}
	if len(rec.events) != 1 || rec.events[0].Grant.Subject != "43" {
		t.Fatalf("only the held privilege is announced, got %+v", rec.events)
	}

	tracker.Grant(ctx, "42", "7", time.Hour, nil)
	if err := tracker.Revoke(ctx, "42", "7"); err != nil {
		t.Fatalf("revoking a privilege no longer held is not an error: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("no event expected, got %+v", rec.events)
	}
}

func TestReconcileExternalRemoval(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", time.Hour, nil)

	removed, err := tracker.ReconcileExternalRemoval(ctx, "42", "7")
	if err != nil || !removed {
		t.Fatalf("expected grant to be reconciled, got %v %v", removed, err)
	}
	if len(rec.revoked) != 0 {
		t.Fatalf("reconciliation must not revoke, got %+v", rec.revoked)
	}
	if len(rec.events) != 1 || rec.events[0].Kind != EventManuallyRemoved {
		t.Fatalf("expected one manually removed event, got %+v", rec.events)
	}

	// Nothing tracked anymore: no event the second time
	removed, _ = tracker.ReconcileExternalRemoval(ctx, "42", "7")
	if removed || len(rec.events) != 1 {
		t.Fatalf("second reconciliation should be a no-op")
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()

	if err := tracker.Revoke(ctx, "nobody", "7"); err != nil {
		t.Fatalf("revoking an absent grant must not fail: %v", err)
	}
	if len(rec.revoked) != 0 {
		t.Fatalf("revoking an absent grant must not call the platform")
	}

	tracker.Grant(ctx, "42", "7", time.Hour, nil)
	if err := tracker.Revoke(ctx, "42", "7"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(rec.revoked) != 1 {
		t.Fatalf("expected one external revoke, got %d", len(rec.revoked))
	}
	if _, found, _ := tracker.Lookup(ctx, "42", "7"); found {
		t.Fatalf("grant still tracked after revoke")
	}
	if err := tracker.Revoke(ctx, "42", "7"); err != nil || len(rec.revoked) != 1 {
		t.Fatalf("second revoke must be a no-op, got %v and %d revokes", err, len(rec.revoked))
	}
}

func TestRevoke_FailureStillRemovesRecord(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	rec.fail["42"] = fmt.Errorf("%w: missing permissions", common.ErrPermissionDenied)
	tracker.Grant(ctx, "42", "7", time.Hour, nil)

	err := tracker.Revoke(ctx, "42", "7")
	if !errors.Is(err, common.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, found, _ := tracker.Lookup(ctx, "42", "7"); found {
		t.Fatalf("grant still tracked after a failed revoke")
	}
}

func TestOnSubjectDeparture_IsSilent(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", time.Hour, nil)

	removed, err := tracker.OnSubjectDeparture(ctx, "42", "7")
	if err != nil || !removed {
		t.Fatalf("expected grant to be dropped, got %v %v", removed, err)
	}
	if len(rec.revoked) != 0 || len(rec.events) != 0 {
		t.Fatalf("departure must not revoke nor notify")
	}

	// A fresh grant can be created afterwards
	if _, err := tracker.Grant(ctx, "42", "7", time.Hour, nil); err != nil {
		t.Fatalf("grant after departure: %v", err)
	}
}

func TestListActive_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker()
	for _, subject := range []string{"c", "a", "b"} {
		tracker.Grant(ctx, subject, "7", time.Hour, nil)
	}
	active, _ := tracker.ListActive(ctx, "7")
	got := ""
	for _, g := range active {
		got += g.Subject
	}
	if got != "cab" {
		t.Fatalf("expected insertion order cab, got %s", got)
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	tracker, rec, _ := newTracker()
	tracker.Grant(ctx, "42", "7", time.Hour, nil)
	if err := tracker.Discard(ctx, "42", "7"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	active, _ := tracker.ListActive(ctx, "7")
	if len(active) != 0 || len(rec.revoked) != 0 || len(rec.events) != 0 {
		t.Fatalf("discard must only drop the record")
	}
}
