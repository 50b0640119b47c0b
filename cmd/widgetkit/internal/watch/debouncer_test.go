package watch

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// recorder collects debouncer flushes.
type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) flush(targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slices.Sort(targets)
	r.batches = append(r.batches, targets)
}

func (r *recorder) get() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

func TestDebouncer_SingleEvent(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.flush)
	defer d.Stop()

	d.Add("dashboard")

	time.Sleep(150 * time.Millisecond)

	batches := rec.get()
	if len(batches) != 1 || !slices.Equal(batches[0], []string{"dashboard"}) {
		t.Errorf("expected [[dashboard]], got %v", batches)
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var rec recorder
	d := NewDebouncer(100*time.Millisecond, rec.flush)
	defer d.Stop()

	d.Add("widget")
	time.Sleep(20 * time.Millisecond)
	d.Add("dashboard")
	time.Sleep(20 * time.Millisecond)
	d.Add("widget")

	time.Sleep(250 * time.Millisecond)

	batches := rec.get()
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %v", batches)
	}
	if want := []string{"dashboard", "widget"}; !slices.Equal(batches[0], want) {
		t.Errorf("expected %v, got %v", want, batches[0])
	}
}

func TestDebouncer_FlushNow(t *testing.T) {
	var rec recorder
	d := NewDebouncer(time.Hour, rec.flush)
	defer d.Stop()

	d.Add("widget")
	d.FlushNow()

	batches := rec.get()
	if len(batches) != 1 || batches[0][0] != "widget" {
		t.Errorf("expected immediate flush, got %v", batches)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected no pending targets, got %d", d.PendingCount())
	}

	// Nothing pending: no empty batch.
	d.FlushNow()
	if n := len(rec.get()); n != 1 {
		t.Errorf("expected 1 batch after empty flush, got %d", n)
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.flush)

	d.Add("widget")
	d.Stop()
	d.Add("dashboard")

	time.Sleep(150 * time.Millisecond)

	if batches := rec.get(); len(batches) != 0 {
		t.Errorf("expected no flush after Stop, got %v", batches)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected no pending targets after Stop, got %d", d.PendingCount())
	}
}

func TestDebouncer_PendingCount(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	defer d.Stop()

	d.Add("a")
	d.Add("b")
	d.Add("a")

	if got := d.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
}

func TestDebouncer_MaxPendingLimit(t *testing.T) {
	var rec recorder
	d := NewDebouncer(time.Hour, rec.flush)
	defer d.Stop()

	for i := range MaxPending {
		d.Add(fmt.Sprintf("unit-%04d", i))
	}

	batches := rec.get()
	if len(batches) != 1 {
		t.Fatalf("expected a flush at the limit, got %d batches", len(batches))
	}
	if len(batches[0]) != MaxPending {
		t.Errorf("expected %d targets, got %d", MaxPending, len(batches[0]))
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected empty pending set, got %d", d.PendingCount())
	}
}
