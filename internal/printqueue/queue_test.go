package printqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tampa-backend/internal/labels"
	"tampa-backend/internal/printers"
)

func label(t *testing.T, name string) labels.LabelData {
	t.Helper()
	d, err := labels.NewLabelData(labels.Required{
		ProductName: name, CategoryName: "Prep", Condition: labels.ConditionFresh, PreparedBy: "Ana",
		PrepDate:   time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		ExpiryDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// scriptedPrinter は n 回目（1始まり）の呼び出しを失敗させる
type scriptedPrinter struct {
	mu       sync.Mutex
	calls    []printers.PrintRequest
	failOn   map[int]bool
	failAll  bool
	release  chan struct{}
	ctxAlive []bool
}

func (p *scriptedPrinter) Print(ctx context.Context, req printers.PrintRequest) (printers.PrintJobResult, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	p.ctxAlive = append(p.ctxAlive, ctx.Err() == nil)
	n := len(p.calls)
	if p.failAll || p.failOn[n] {
		return printers.PrintJobResult{Status: printers.JobFailed}, fmt.Errorf("printer offline (call %d)", n)
	}
	return printers.PrintJobResult{Status: printers.JobSuccess}, nil
}

func TestAddClampsQuantity(t *testing.T) {
	q := NewQueue(nil, nil)
	for in, want := range map[int]int{0: 1, -5: 1, 1: 1, 42: 42, 100: 100, 150: 100} {
		if got := q.Add(label(t, "x"), in).Quantity; got != want {
			t.Errorf("Add(%d) quantity=%d, want %d", in, got, want)
		}
	}
}

func TestUpdateQuantityBoundaries(t *testing.T) {
	q := NewQueue(nil, nil)
	low := q.Add(label(t, "low"), 1)
	high := q.Add(label(t, "high"), 100)
	mid := q.Add(label(t, "mid"), 99)

	if it, _ := q.UpdateQuantity(low.ID, -1); it.Quantity != 1 {
		t.Errorf("1-1 should be rejected, got %d", it.Quantity)
	}
	if it, _ := q.UpdateQuantity(high.ID, +1); it.Quantity != 100 {
		t.Errorf("100+1 should be rejected, got %d", it.Quantity)
	}
	if it, _ := q.UpdateQuantity(mid.ID, +1); it.Quantity != 100 {
		t.Errorf("99+1 should be accepted, got %d", it.Quantity)
	}
	if it, _ := q.UpdateQuantity(low.ID, +1); it.Quantity != 2 {
		t.Errorf("1+1 should be accepted, got %d", it.Quantity)
	}
	if _, err := q.UpdateQuantity("ghost", 1); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	q := NewQueue(nil, nil)
	a := q.Add(label(t, "a"), 1)
	q.Add(label(t, "b"), 3)
	if err := q.Remove(a.ID); err != nil {
		t.Fatal(err)
	}
	if items := q.Items(); len(items) != 1 || items[0].Label.ProductName != "b" {
		t.Fatalf("unexpected items %+v", items)
	}
	if q.TotalLabels() != 3 {
		t.Errorf("total should be the quantity sum, got %d", q.TotalLabels())
	}
	q.Clear()
	if len(q.Items()) != 0 {
		t.Error("clear failed")
	}
}

func TestPrintAllPartialFailure(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Add(label(t, "A"), 2)
	q.Add(label(t, "B"), 1)
	p := &scriptedPrinter{failOn: map[int]bool{1: true}}

	var updates []Progress
	final, err := q.PrintAll(context.Background(), p, "P1", "ana", func(pr Progress) { updates = append(updates, pr) })
	if err != nil {
		t.Fatal(err)
	}

	if final.PrintedLabels != 3 || final.TotalLabels != 3 {
		t.Errorf("printed=%d total=%d", final.PrintedLabels, final.TotalLabels)
	}
	if final.SucceededLabels != 2 || final.FailedLabels != 1 {
		t.Errorf("succeeded=%d failed=%d", final.SucceededLabels, final.FailedLabels)
	}
	if final.SucceededLabels+final.FailedLabels != final.TotalLabels {
		t.Error("every unit must be accounted for")
	}
	if len(final.Errors) != 1 || !strings.Contains(final.Errors[0], "A (label 1 of 2)") {
		t.Errorf("errors: %v", final.Errors)
	}
	if final.Running || final.FinishedAt == nil {
		t.Errorf("batch should be finished: %+v", final)
	}

	items := q.Items()
	if items[0].Status != StatusFailed || items[0].Printed != 1 || items[0].Failed != 1 {
		t.Errorf("A: %+v", items[0])
	}
	if items[1].Status != StatusPrinted {
		t.Errorf("B: %+v", items[1])
	}

	// 1枚ごとの更新が 3 回あること
	perLabel := 0
	last := 0
	for _, u := range updates {
		if u.PrintedLabels == last+1 {
			perLabel++
			last = u.PrintedLabels
		}
	}
	if perLabel != 3 {
		t.Errorf("expected an update per label, got %d", perLabel)
	}
	for _, c := range p.calls {
		if c.Quantity != 1 || c.PrinterID != "P1" || c.CreatedBy != "ana" {
			t.Errorf("unexpected request %+v", c)
		}
	}
}

func TestPrintAllNeverAbortsEarly(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Add(label(t, "A"), 3)
	q.Add(label(t, "B"), 2)
	q.Add(label(t, "C"), 4)
	p := &scriptedPrinter{failAll: true}

	final, err := q.PrintAll(context.Background(), p, "P1", "ana", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 9 {
		t.Fatalf("every unit should be attempted, got %d calls", len(p.calls))
	}
	if final.FailedLabels != 9 || final.PrintedLabels != 9 || len(final.Errors) != 9 {
		t.Errorf("unexpected %+v", final)
	}
	if got := p.calls[8].Label.ProductName; got != "C" {
		t.Errorf("last call should be for C, got %s", got)
	}
}

func TestPrintAllRejectsConcurrentBatch(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Add(label(t, "A"), 1)
	p := &scriptedPrinter{release: make(chan struct{})}

	done := make(chan Progress, 1)
	ctx, cancel := context.WithCancel(context.Background())
	initial, err := q.Start(ctx, p, "P1", "ana", func(pr Progress) {
		if !pr.Running {
			done <- pr
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !initial.Running || initial.TotalLabels != 1 {
		t.Errorf("initial: %+v", initial)
	}
	if !q.IsPrinting() {
		t.Fatal("queue should be printing")
	}
	if _, err := q.PrintAll(context.Background(), p, "P1", "ana", nil); !errors.Is(err, ErrBatchInProgress) {
		t.Fatalf("expected ErrBatchInProgress, got %v", err)
	}

	// リクエストが終わっても止まらない
	cancel()
	close(p.release)

	select {
	case final := <-done:
		if final.SucceededLabels != 1 {
			t.Errorf("unexpected %+v", final)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}
	if q.IsPrinting() {
		t.Error("flag should be cleared")
	}
	if !p.ctxAlive[0] {
		t.Error("batch must be detached from the request context")
	}
}

func TestRegistrySeparatesSessions(t *testing.T) {
	r := NewRegistry()
	a := r.Get("org-1", "ana")
	if r.Get("org-1", "ana") != a {
		t.Error("same session should share a queue")
	}
	if r.Get("org-1", "sam") == a || r.Get("org-2", "ana") == a {
		t.Error("sessions must be isolated")
	}
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRegistryEvictsIdleQueues(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.clock = clock

	idle := r.Get("org-1", "ana")
	busy := r.Get("org-1", "sam")
	busy.Add(label(t, "A"), 1)
	p := &scriptedPrinter{release: make(chan struct{})}
	done := make(chan struct{})
	if _, err := busy.Start(context.Background(), p, "P1", "sam", func(pr Progress) {
		if !pr.Running {
			close(done)
		}
	}); err != nil {
		t.Fatal(err)
	}

	clock.advance(DefaultIdleTTL + time.Minute)
	r.Get("org-1", "zoe")

	if r.Len() != 2 {
		t.Errorf("only the idle queue should go, %d left", r.Len())
	}
	if r.Get("org-1", "sam") != busy {
		t.Error("a printing queue must never be evicted")
	}
	if r.Get("org-1", "ana") == idle {
		t.Error("idle queue should have been replaced")
	}

	close(p.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}
}

func TestRegistryKeepsRecentlyUsedQueues(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.clock = clock

	q := r.Get("org-1", "ana")
	q.Add(label(t, "A"), 2)
	clock.advance(DefaultIdleTTL / 2)
	r.Get("org-1", "ana")
	clock.advance(DefaultIdleTTL / 2)
	if r.Get("org-1", "ana") != q || len(q.Items()) != 1 {
		t.Error("touching a queue should keep it alive")
	}
}
