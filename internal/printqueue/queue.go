package printqueue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"tampa-backend/internal/labels"
	"tampa-backend/internal/printers"
)

var (
	ErrBatchInProgress = errors.New("a batch print is already running")
	ErrItemNotFound    = errors.New("queue item not found")
)

// LabelPrinter は printers.Manager が満たす
type LabelPrinter interface {
	Print(ctx context.Context, req printers.PrintRequest) (printers.PrintJobResult, error)
}

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Queue は1セッション分の印刷キュー。
// 印刷中の数量変更・削除を拒否するのは呼び出し側（HTTP 層）の責任で、Queue 自体は受け付ける。
type Queue struct {
	clock Clock
	ids   IDGen

	mu       sync.Mutex
	items    []*Item
	printing bool
	progress Progress
}

func NewQueue(clock Clock, ids IDGen) *Queue {
	if clock == nil {
		clock = realClock{}
	}
	if ids == nil {
		ids = ulidGen{}
	}
	return &Queue{clock: clock, ids: ids, progress: Progress{Errors: []string{}}}
}

func clampQuantity(q int) int {
	return min(max(q, MinQuantity), MaxQuantity)
}

// Add: 数量 0 以下は 1、上限超えは 100 に丸める
func (q *Queue) Add(label labels.LabelData, quantity int) Item {
	if quantity == 0 {
		quantity = 1
	}
	now := q.clock.Now()
	it := &Item{
		ID:       q.ids.NewULID(now),
		Label:    label,
		Quantity: clampQuantity(quantity),
		AddedAt:  now,
		Status:   StatusPending,
	}
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	return *it
}

// UpdateQuantity: 結果が 1〜100 を外れる場合は何もしない
func (q *Queue) UpdateQuantity(id string, delta int) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.find(id)
	if it == nil {
		return Item{}, ErrItemNotFound
	}
	if next := it.Quantity + delta; next >= MinQuantity && next <= MaxQuantity {
		it.Quantity = next
	}
	return *it, nil
}

func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Items: 追加順のコピー
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	return out
}

func (q *Queue) IsPrinting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.printing
}

func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress.clone()
}

// TotalLabels は数量の合計（アイテム数ではない）
func (q *Queue) TotalLabels() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, it := range q.items {
		total += it.Quantity
	}
	return total
}

func (q *Queue) find(id string) *Item {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// ---- batch printing ----

type batch struct {
	printerID string
	createdBy string
	units     []*Item // 開始時点のアイテムと数量
	qty       []int
}

func (q *Queue) begin(printerID, createdBy string) (*batch, Progress, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.printing {
		return nil, Progress{}, ErrBatchInProgress
	}

	b := &batch{printerID: printerID, createdBy: createdBy}
	total := 0
	for _, it := range q.items {
		it.Status, it.Printed, it.Failed = StatusPending, 0, 0
		b.units = append(b.units, it)
		b.qty = append(b.qty, it.Quantity)
		total += it.Quantity
	}

	now := q.clock.Now()
	q.printing = true
	q.progress = Progress{
		Running:     true,
		PrinterID:   printerID,
		TotalLabels: total,
		Errors:      []string{},
		StartedAt:   &now,
	}
	return b, q.progress.clone(), nil
}

// PrintAll はキューを追加順に1枚ずつ印刷する。1枚の失敗で止めず、エラーは Progress.Errors に積む。
// 完了後の Progress を返す。途中キャンセルはない。
func (q *Queue) PrintAll(ctx context.Context, p LabelPrinter, printerID, createdBy string, onProgress func(Progress)) (Progress, error) {
	b, _, err := q.begin(printerID, createdBy)
	if err != nil {
		return Progress{}, err
	}
	return q.run(ctx, p, b, onProgress), nil
}

// Start は PrintAll をバックグラウンドで走らせ、開始時点の Progress を返す。
// バッチはリクエストの ctx から切り離す。
func (q *Queue) Start(ctx context.Context, p LabelPrinter, printerID, createdBy string, onProgress func(Progress)) (Progress, error) {
	b, initial, err := q.begin(printerID, createdBy)
	if err != nil {
		return Progress{}, err
	}
	go q.run(context.WithoutCancel(ctx), p, b, onProgress)
	return initial, nil
}

func (q *Queue) run(ctx context.Context, p LabelPrinter, b *batch, onProgress func(Progress)) Progress {
	notify := func(pr Progress) {
		if onProgress != nil {
			onProgress(pr)
		}
	}

	for i, it := range b.units {
		qty := b.qty[i]
		q.mu.Lock()
		it.Status = StatusPrinting
		q.progress.CurrentItem = it.Label.ProductName
		q.progress.CurrentQuantity = qty
		snap := q.progress.clone()
		q.mu.Unlock()
		notify(snap)

		for unit := 1; unit <= qty; unit++ {
			_, err := p.Print(ctx, printers.PrintRequest{
				PrinterID: b.printerID,
				Label:     it.Label,
				Quantity:  1,
				CreatedBy: b.createdBy,
			})

			q.mu.Lock()
			q.progress.PrintedLabels++
			if err != nil {
				it.Failed++
				q.progress.FailedLabels++
				q.progress.Errors = append(q.progress.Errors,
					fmt.Sprintf("%s (label %d of %d): %v", it.Label.ProductName, unit, qty, err))
			} else {
				it.Printed++
				q.progress.SucceededLabels++
			}
			snap = q.progress.clone()
			q.mu.Unlock()
			notify(snap)
		}

		q.mu.Lock()
		if it.Failed > 0 {
			it.Status = StatusFailed
		} else {
			it.Status = StatusPrinted
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	now := q.clock.Now()
	q.printing = false
	q.progress.Running = false
	q.progress.CurrentItem = ""
	q.progress.CurrentQuantity = 0
	q.progress.FinishedAt = &now
	final := q.progress.clone()
	q.mu.Unlock()

	log.Printf("[INFO] batch print on %s finished: %d/%d succeeded, %d failed",
		b.printerID, final.SucceededLabels, final.TotalLabels, final.FailedLabels)
	notify(final)
	return final
}

// ---- sessions ----

const (
	// 最後のアクセスからこの時間が過ぎた印刷中でないキューは捨てる
	DefaultIdleTTL = 12 * time.Hour
	sweepInterval  = time.Minute
)

// Registry は組織 + ユーザーごとのキューを保持する（プロセス内のみ、永続化しない）
type Registry struct {
	clock   Clock
	ids     IDGen
	idleTTL time.Duration

	mu        sync.Mutex
	queues    map[string]*session
	lastSweep time.Time
}

type session struct {
	queue    *Queue
	lastSeen time.Time
}

func NewRegistry() *Registry {
	return &Registry{clock: realClock{}, ids: ulidGen{}, idleTTL: DefaultIdleTTL, queues: map[string]*session{}}
}

func SessionKey(orgID, userID string) string { return orgID + ":" + userID }

func (r *Registry) Get(orgID, userID string) *Queue {
	key := SessionKey(orgID, userID)
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= sweepInterval {
		r.evictIdleLocked(now)
		r.lastSweep = now
	}
	s, ok := r.queues[key]
	if !ok {
		s = &session{queue: NewQueue(r.clock, r.ids)}
		r.queues[key] = s
	}
	s.lastSeen = now
	return s.queue
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

func (r *Registry) evictIdleLocked(now time.Time) {
	for key, s := range r.queues {
		if now.Sub(s.lastSeen) < r.idleTTL || s.queue.IsPrinting() {
			continue
		}
		delete(r.queues, key)
		log.Printf("[INFO] print queue %s evicted after %s idle (%d item(s))", key, now.Sub(s.lastSeen).Round(time.Minute), len(s.queue.Items()))
	}
}
