package usage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestPeriodKeys(t *testing.T) {
	at := time.Date(2026, 9, 1, 23, 30, 0, 0, time.UTC)
	if got := MonthKey(at); got != "2026-09" {
		t.Fatalf("month key: %s", got)
	}
	if got := DayKey(at); got != "2026-09-01" {
		t.Fatalf("day key: %s", got)
	}
	if got := PeriodFor(ActionSearches, at); got != "2026-09-01" {
		t.Fatalf("searches should be daily, got %s", got)
	}
	if got := PeriodFor(ActionRegistrations, at); got != "2026-09" {
		t.Fatalf("registrations should be monthly, got %s", got)
	}
}

func TestAllowUnderAndAtLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewInMemory(), Limits{"free": {ActionSaves: 2}}).
		WithClock(fixedClock("2026-09-01T10:00:00Z"))

	ok, _, err := m.Allow(ctx, "u1", "free", ActionSaves)
	if err != nil || !ok {
		t.Fatalf("expected allow, ok=%v err=%v", ok, err)
	}
	if err := m.Record(ctx, "u1", ActionSaves); err != nil {
		t.Fatal(err)
	}
	if err := m.Record(ctx, "u1", ActionSaves); err != nil {
		t.Fatal(err)
	}

	ok, msg, err := m.Allow(ctx, "u1", "free", ActionSaves)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected denial at limit")
	}
	if !strings.Contains(msg, "2") {
		t.Fatalf("denial message should name the limit: %q", msg)
	}
}

func TestUnlimitedTierAlwaysAllows(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewInMemory(), Limits{"member": {ActionRegistrations: Unlimited}}).
		WithClock(fixedClock("2026-09-01T10:00:00Z"))

	for i := 0; i < 100; i++ {
		ok, _, err := m.Reserve(ctx, "u1", "member", ActionRegistrations)
		if err != nil || !ok {
			t.Fatalf("iteration %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestReserveStopsExactlyAtLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewInMemory(), Limits{"free": {ActionRegistrations: 10}}).
		WithClock(fixedClock("2026-09-01T10:00:00Z"))

	for i := 0; i < 10; i++ {
		ok, _, err := m.Reserve(ctx, "u1", "free", ActionRegistrations)
		if err != nil || !ok {
			t.Fatalf("reservation %d should succeed, ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, limit, err := m.Reserve(ctx, "u1", "free", ActionRegistrations)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("11th reservation should be denied")
	}
	if limit != 10 {
		t.Fatalf("expected limit 10, got %d", limit)
	}
}

func TestReleaseReturnsUnit(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewInMemory(), Limits{"free": {ActionRegistrations: 1}}).
		WithClock(fixedClock("2026-09-01T10:00:00Z"))

	if ok, _, _ := m.Reserve(ctx, "u1", "free", ActionRegistrations); !ok {
		t.Fatal("first reservation should succeed")
	}
	if err := m.Release(ctx, "u1", ActionRegistrations); err != nil {
		t.Fatal(err)
	}
	if ok, _, _ := m.Reserve(ctx, "u1", "free", ActionRegistrations); !ok {
		t.Fatal("reservation after release should succeed")
	}
}

func TestPeriodsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemory()

	if err := ledger.Record(ctx, "u1", ActionRegistrations, "2026-08"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(ctx, "u1", ActionRegistrations, "2026-08"); err != nil {
		t.Fatal(err)
	}
	aug, _ := ledger.Count(ctx, "u1", ActionRegistrations, "2026-08")
	sep, _ := ledger.Count(ctx, "u1", ActionRegistrations, "2026-09")
	if aug != 2 || sep != 0 {
		t.Fatalf("period isolation violated: aug=%d sep=%d", aug, sep)
	}
}

func TestConcurrentReserveNeverOverruns(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemory()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	N := 50
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Reserve(ctx, "u1", ActionRegistrations, "2026-09", 10)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 10 {
		t.Fatalf("expected exactly 10 grants, got %d", granted)
	}
	count, _ := ledger.Count(ctx, "u1", ActionRegistrations, "2026-09")
	if count != 10 {
		t.Fatalf("counter overrun: %d", count)
	}
}

func TestDeleteUserDropsAllCounters(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemory()
	_ = ledger.Record(ctx, "u1", ActionSaves, "2026-09")
	_ = ledger.Record(ctx, "u1", ActionSearches, "2026-09-01")
	_ = ledger.Record(ctx, "u2", ActionSaves, "2026-09")

	if err := ledger.DeleteUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if c, _ := ledger.Count(ctx, "u1", ActionSaves, "2026-09"); c != 0 {
		t.Fatalf("u1 counter survived delete: %d", c)
	}
	if c, _ := ledger.Count(ctx, "u2", ActionSaves, "2026-09"); c != 1 {
		t.Fatalf("u2 counter lost: %d", c)
	}
}
