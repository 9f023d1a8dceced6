// Package reorder keeps a locally held ordered collection in step with the
// server while items are dragged around.
//
// A move takes effect locally before Move returns; the new position is then
// written in the background. Writes for one item are issued strictly one after
// another, writes for different items run concurrently. When a write fails
// and no newer move of the same item has happened since, the item goes back
// to its last confirmed position. Later moves always win over earlier ones.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chdsbd/recipeyak/internal/ordering"
)

var (
	ErrIndexOutOfRange = errors.New("reorder: index out of range")
	ErrPersistence     = errors.New("reorder: persist position")
	ErrDuplicateItem   = errors.New("reorder: item already in list")
)

// Persister stores one item's position and returns the position the server
// kept. An empty return means the position was stored as sent.
type Persister interface {
	UpdatePosition(ctx context.Context, item Item) (string, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, item Item) (string, error)

func (f PersisterFunc) UpdatePosition(ctx context.Context, item Item) (string, error) {
	return f(ctx, item)
}

// Options tunes a List. The zero value is usable.
type Options struct {
	Logger *zap.Logger
	// MaxKeyLen makes Move respace the whole list instead of handing out a
	// key longer than this. Zero means keys may grow without limit.
	MaxKeyLen int
	// Concurrency bounds the writes in flight for one Rebalance. Default 4.
	Concurrency int
}

// List is one ordered collection kept in display order by Position. It is
// safe for concurrent use.
type List struct {
	persister   Persister
	logger      *zap.Logger
	maxKeyLen   int
	concurrency int

	mu        sync.Mutex
	items     []Item
	confirmed map[itemKey]string
	latest    map[itemKey]uint64
	chains    map[itemKey]chan struct{}
	seq       uint64
	// generation counts Resets; writes from an older generation never
	// update confirmed
	generation uint64
	inflight   sync.WaitGroup
}

// NewList returns a List holding items sorted by position. persister may be
// nil for a read-only list that is never moved.
func NewList(items []Item, persister Persister, opts Options) *List {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	l := &List{
		persister:   persister,
		logger:      logger,
		maxKeyLen:   opts.MaxKeyLen,
		concurrency: concurrency,
		latest:      make(map[itemKey]uint64),
		chains:      make(map[itemKey]chan struct{}),
	}
	l.Reset(items)
	return l
}

// Reset replaces the collection with freshly fetched items. Writes still in
// flight will not touch the new state.
func (l *List) Reset(items []Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.items = append([]Item(nil), items...)
	sortItems(l.items)
	l.confirmed = make(map[itemKey]string, len(items))
	for _, item := range l.items {
		l.confirmed[item.key()] = item.Position
	}
	for k := range l.latest {
		l.seq++
		l.latest[k] = l.seq
	}
}

// Items returns the collection in display order.
func (l *List) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Item(nil), l.items...)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Index returns the display index of an item, or -1.
func (l *List) Index(kind Kind, id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexLocked(itemKey{kind: kind, id: id})
}

// Insert appends an item with a position after the current last one. The
// caller creates the entity on the server with the returned position.
func (l *List) Insert(kind Kind, id int64) (Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := itemKey{kind: kind, id: id}
	if l.indexLocked(k) >= 0 {
		return Item{}, fmt.Errorf("%w: %s %d", ErrDuplicateItem, kind, id)
	}
	var last string
	if n := len(l.items); n > 0 {
		last = l.items[n-1].Position
	}
	position, err := ordering.PositionBetween(last, "")
	if err != nil {
		return Item{}, fmt.Errorf("insert %s %d: %w", kind, id, err)
	}
	item := Item{Kind: kind, ID: id, Position: position}
	l.items = append(l.items, item)
	l.confirmed[k] = position
	return item, nil
}

// Remove drops an item locally. It reports whether the item was present.
func (l *List) Remove(kind Kind, id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := itemKey{kind: kind, id: id}
	idx := l.indexLocked(k)
	if idx < 0 {
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	delete(l.confirmed, k)
	return true
}

// Move places the item at display index from at display index to. The list
// reflects the move when Move returns; the returned Pending resolves once the
// new position has been persisted or rolled back.
func (l *List) Move(ctx context.Context, from, to int) (*Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, fmt.Errorf("%w: move %d to %d in a list of %d", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return resolved(nil), nil
	}

	moved := l.items[from]
	rest := make([]Item, 0, n)
	rest = append(rest, l.items[:from]...)
	rest = append(rest, l.items[from+1:]...)

	var low, high string
	if to > 0 {
		low = rest[to-1].Position
	}
	if to < len(rest) {
		high = rest[to].Position
	}
	if low != "" && low == high {
		l.logger.Info("neighbours share a position, rebalancing list",
			zap.Stringer("kind", moved.Kind),
			zap.Int64("id", moved.ID),
			zap.String("position", low),
			zap.Int("items", n))
		return l.rebalanceLocked(ctx, placeAt(rest, moved, to)), nil
	}
	position, err := ordering.PositionBetween(low, high)
	if err != nil {
		return nil, fmt.Errorf("move %s %d: %w", moved.Kind, moved.ID, err)
	}

	if l.maxKeyLen > 0 && len(position) > l.maxKeyLen {
		l.logger.Info("position key too long, rebalancing list",
			zap.Stringer("kind", moved.Kind),
			zap.Int64("id", moved.ID),
			zap.Int("keyLen", len(position)),
			zap.Int("items", n))
		return l.rebalanceLocked(ctx, placeAt(rest, moved, to)), nil
	}

	moved.Position = position
	l.setPositionLocked(moved.key(), position)
	return l.persistLocked(ctx, []Item{moved}), nil
}

func placeAt(rest []Item, item Item, at int) []Item {
	rest = append(rest, Item{})
	copy(rest[at+1:], rest[at:])
	rest[at] = item
	return rest
}

// Rebalance gives every item a short key in the current display order and
// persists the keys that changed. If any write fails, every item goes back to
// its previous key and the writes that did succeed are reverted on the server.
func (l *List) Rebalance(ctx context.Context) *Pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebalanceLocked(ctx, append([]Item(nil), l.items...))
}

// Wait blocks until every write issued so far has settled.
func (l *List) Wait() {
	l.inflight.Wait()
}

func (l *List) rebalanceLocked(ctx context.Context, order []Item) *Pending {
	keys := ordering.Spread(len(order))
	var batch []Item
	for i := range order {
		if order[i].Position == keys[i] {
			continue
		}
		order[i].Position = keys[i]
		batch = append(batch, order[i])
	}
	l.items = order
	if len(batch) == 0 {
		return resolved(nil)
	}
	return l.persistLocked(ctx, batch)
}

type write struct {
	key        itemKey
	item       Item
	seq        uint64
	generation uint64
	wait       <-chan struct{}
	done       chan struct{}
}

type outcome struct {
	prev   string
	stored string
	err    error
}

func (l *List) persistLocked(ctx context.Context, batch []Item) *Pending {
	writes := make([]write, len(batch))
	for i, item := range batch {
		l.seq++
		k := item.key()
		l.latest[k] = l.seq
		done := make(chan struct{})
		writes[i] = write{key: k, item: item, seq: l.seq, generation: l.generation, wait: l.chains[k], done: done}
		l.chains[k] = done
	}

	p := &Pending{done: make(chan struct{})}
	l.inflight.Add(1)
	go l.run(ctx, writes, p)
	return p
}

func (l *List) run(ctx context.Context, writes []write, p *Pending) {
	defer l.inflight.Done()

	outcomes := make([]outcome, len(writes))
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i := range writes {
		i := i
		g.Go(func() error {
			outcomes[i] = l.persistOne(ctx, writes[i])
			return nil
		})
	}
	_ = g.Wait()

	p.resolve(l.settle(ctx, writes, outcomes))
}

func (l *List) persistOne(ctx context.Context, w write) outcome {
	defer l.release(w)
	if w.wait != nil {
		<-w.wait
	}

	l.mu.Lock()
	prev := l.confirmed[w.key]
	l.mu.Unlock()

	stored, err := l.persister.UpdatePosition(ctx, w.item)
	if err != nil {
		return outcome{prev: prev, err: err}
	}
	if stored == "" {
		stored = w.item.Position
	} else if verr := ordering.Validate(stored); verr != nil {
		l.logger.Warn("server echoed an invalid position, keeping ours",
			zap.Stringer("kind", w.item.Kind),
			zap.Int64("id", w.item.ID),
			zap.String("sent", w.item.Position),
			zap.String("echoed", stored))
		stored = w.item.Position
	}

	l.mu.Lock()
	if _, ok := l.confirmed[w.key]; ok && w.generation == l.generation {
		l.confirmed[w.key] = stored
	}
	l.mu.Unlock()
	return outcome{prev: prev, stored: stored}
}

func (l *List) release(w write) {
	l.mu.Lock()
	defer l.mu.Unlock()
	close(w.done)
	if l.chains[w.key] == w.done {
		delete(l.chains, w.key)
	}
}

func (l *List) settle(ctx context.Context, writes []write, outcomes []outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	failed := 0
	for i, w := range writes {
		o := outcomes[i]
		if o.err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		if l.latest[w.key] == w.seq && o.stored != w.item.Position {
			l.setPositionLocked(w.key, o.stored)
		}
	}
	if failed == 0 {
		return nil
	}

	var revert []Item
	for i, w := range writes {
		o := outcomes[i]
		if l.latest[w.key] != w.seq {
			l.logger.Debug("ignoring superseded position write",
				zap.Stringer("kind", w.item.Kind),
				zap.Int64("id", w.item.ID),
				zap.String("position", w.item.Position))
			continue
		}
		l.logger.Warn("rolling back position",
			zap.Stringer("kind", w.item.Kind),
			zap.Int64("id", w.item.ID),
			zap.String("attempted", w.item.Position),
			zap.String("restored", o.prev),
			zap.Error(o.err))
		l.setPositionLocked(w.key, o.prev)
		if o.err == nil {
			item := w.item
			item.Position = o.prev
			revert = append(revert, item)
		}
	}
	if len(revert) > 0 {
		l.persistLocked(ctx, revert)
	}

	return fmt.Errorf("%w: %d of %d writes failed: %w", ErrPersistence, failed, len(writes), firstErr)
}

func (l *List) setPositionLocked(k itemKey, position string) {
	idx := l.indexLocked(k)
	if idx < 0 || position == "" {
		return
	}
	l.items[idx].Position = position
	sortItems(l.items)
}

func (l *List) indexLocked(k itemKey) int {
	for i, item := range l.items {
		if item.key() == k {
			return i
		}
	}
	return -1
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].ID < items[j].ID
	})
}

// Pending is the outcome of a background write.
type Pending struct {
	done chan struct{}
	err  error
}

func resolved(err error) *Pending {
	p := &Pending{done: make(chan struct{})}
	p.resolve(err)
	return p
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the write has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write settles and returns its error, which wraps
// ErrPersistence when the position was rolled back.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}
