// Package calendar reconciles drag-and-drop edits of the meal schedule with
// the server.
//
// Each edit is recorded as a mutation: the touched entries before and after.
// The after state is applied immediately. If the server rejects the edit, the
// before state is put back for every entry nobody has changed since.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the wire format of a scheduled day.
const DateLayout = "2006-01-02"

var (
	ErrNotFound    = errors.New("calendar: scheduled recipe not found")
	ErrPersistence = errors.New("calendar: persist schedule change")
)

// Entry is one recipe scheduled on one day, possibly several times.
type Entry struct {
	ID         int64
	RecipeID   int64
	RecipeName string
	On         time.Time
	Count      int
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	On    *time.Time
	Count *int
}

type Persister interface {
	UpdateScheduledRecipe(ctx context.Context, id int64, patch Patch) (Entry, error)
	DeleteScheduledRecipe(ctx context.Context, id int64) error
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

type Board struct {
	persister Persister
	logger    *zap.Logger

	mu       sync.Mutex
	entries  map[int64]Entry
	inflight sync.WaitGroup
}

func NewBoard(entries []Entry, persister Persister, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Board{persister: persister, logger: logger}
	b.Reset(entries)
	return b
}

// Reset replaces the board with freshly fetched entries.
func (b *Board) Reset(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[int64]Entry, len(entries))
	for _, e := range entries {
		e.On = Day(e.On)
		b.entries[e.ID] = e
	}
}

// Put adds or replaces a single entry, e.g. after scheduling a recipe.
func (b *Board) Put(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.On = Day(e.On)
	b.entries[e.ID] = e
}

func (b *Board) Get(id int64) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e, ok
}

// Entries returns every entry ordered by day, recipe name and id.
func (b *Board) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// DaySchedule is the content of one calendar cell.
type DaySchedule struct {
	Date    time.Time
	Entries []Entry
}

// Days returns one cell per day from start to end inclusive.
func (b *Board) Days(start, end time.Time) []DaySchedule {
	start, end = Day(start), Day(end)
	var days []DaySchedule
	byDay := map[time.Time][]Entry{}
	for _, e := range b.Entries() {
		byDay[e.On] = append(byDay[e.On], e)
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, DaySchedule{Date: d, Entries: byDay[d]})
	}
	return days
}

// Wait blocks until every change issued so far has settled.
func (b *Board) Wait() {
	b.inflight.Wait()
}

// Move puts an entry on another day. When the same recipe is already
// scheduled that day the two entries merge and their counts add up.
func (b *Board) Move(ctx context.Context, id int64, to time.Time) (*Pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	to = Day(to)
	moving, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if sameDay(moving.On, to) {
		return resolved(nil), nil
	}

	if sink, ok := b.sinkLocked(moving, to); ok {
		merged := sink
		merged.Count += moving.Count
		m := newMutation(mutationMerge).
			touch(moving.ID, &moving, nil).
			touch(sink.ID, &sink, &merged)
		b.applyLocked(m.after)
		return b.persistLocked(ctx, m, func(ctx context.Context) error {
			count := merged.Count
			if _, err := b.persister.UpdateScheduledRecipe(ctx, sink.ID, Patch{Count: &count}); err != nil {
				return err
			}
			if err := b.persister.DeleteScheduledRecipe(ctx, moving.ID); err != nil {
				restore, ok := b.restoredCount(sink, merged)
				if !ok {
					return err
				}
				if _, cerr := b.persister.UpdateScheduledRecipe(ctx, sink.ID, Patch{Count: &restore}); cerr != nil {
					b.logger.Error("could not restore merged count",
						zap.Int64("sink", sink.ID),
						zap.Int("count", restore),
						zap.Error(cerr))
				}
				return err
			}
			return nil
		}), nil
	}

	moved := moving
	moved.On = to
	m := newMutation(mutationMove).touch(moving.ID, &moving, &moved)
	b.applyLocked(m.after)
	return b.persistLocked(ctx, m, func(ctx context.Context) error {
		day := to
		stored, err := b.persister.UpdateScheduledRecipe(ctx, moving.ID, Patch{On: &day})
		if err != nil {
			return err
		}
		b.echo(moved, stored)
		return nil
	}), nil
}

// SetCount changes how many times a recipe is scheduled on its day. A count
// of zero or less unschedules it.
func (b *Board) SetCount(ctx context.Context, id int64, count int) (*Pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if count <= 0 {
		m := newMutation(mutationDelete).touch(id, &current, nil)
		b.applyLocked(m.after)
		return b.persistLocked(ctx, m, func(ctx context.Context) error {
			return b.persister.DeleteScheduledRecipe(ctx, id)
		}), nil
	}

	updated := current
	updated.Count = count
	m := newMutation(mutationCount).touch(id, &current, &updated)
	b.applyLocked(m.after)
	return b.persistLocked(ctx, m, func(ctx context.Context) error {
		n := count
		stored, err := b.persister.UpdateScheduledRecipe(ctx, id, Patch{Count: &n})
		if err != nil {
			return err
		}
		b.echo(updated, stored)
		return nil
	}), nil
}

// restoredCount is the sink count to write back after a failed merge. An
// edit made to the sink since the merge wins over the pre-merge count; a
// sink removed since then is left alone.
func (b *Board) restoredCount(sink, merged Entry) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.entries[sink.ID]
	if !ok {
		return 0, false
	}
	if equalEntry(current, merged) {
		return sink.Count, true
	}
	return current.Count, true
}

func (b *Board) sinkLocked(moving Entry, to time.Time) (Entry, bool) {
	var candidates []Entry
	for _, e := range b.entries {
		if e.ID != moving.ID && e.RecipeID == moving.RecipeID && sameDay(e.On, to) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Entry{}, false
	}
	sortEntries(candidates)
	return candidates[0], true
}

func (b *Board) persistLocked(ctx context.Context, m mutation, send func(context.Context) error) *Pending {
	p := &Pending{done: make(chan struct{})}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		err := send(ctx)
		if err == nil {
			p.resolve(nil)
			return
		}
		b.rollback(m, err)
		p.resolve(fmt.Errorf("%w: %s: %w", ErrPersistence, m.kind, err))
	}()
	return p
}

// rollback applies the inverse of m to every entry still in m's after state.
func (b *Board) rollback(m mutation, cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inverse := m.inverse()
	restore := map[int64]*Entry{}
	for id, want := range m.after {
		current, present := b.entries[id]
		untouched := (want == nil && !present) || (want != nil && present && equalEntry(current, *want))
		if !untouched {
			b.logger.Debug("entry changed since the failed edit, leaving it",
				zap.Int64("id", id),
				zap.Stringer("mutation", m.kind))
			continue
		}
		restore[id] = inverse.after[id]
	}
	b.logger.Warn("rolling back schedule change",
		zap.Stringer("mutation", m.kind),
		zap.Int("entries", len(restore)),
		zap.Error(cause))
	b.applyLocked(restore)
}

// echo adopts the server's copy of an entry if nothing changed it locally
// since the request went out.
func (b *Board) echo(sent, stored Entry) {
	if stored.ID == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.entries[sent.ID]; ok && equalEntry(current, sent) {
		stored.On = Day(stored.On)
		if stored.RecipeName == "" {
			stored.RecipeName = current.RecipeName
		}
		b.entries[sent.ID] = stored
	}
}

func (b *Board) applyLocked(state map[int64]*Entry) {
	for id, e := range state {
		if e == nil {
			delete(b.entries, id)
			continue
		}
		b.entries[id] = *e
	}
}

func equalEntry(a, b Entry) bool {
	return a.ID == b.ID && a.RecipeID == b.RecipeID && a.RecipeName == b.RecipeName &&
		a.Count == b.Count && a.On.Equal(b.On)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.On.Equal(b.On) {
			return a.On.Before(b.On)
		}
		if a.RecipeName != b.RecipeName {
			return a.RecipeName < b.RecipeName
		}
		return a.ID < b.ID
	})
}

// Pending is the outcome of a background schedule change.
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

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait returns nil once the server accepted the change, or an error wrapping
// ErrPersistence after it was rolled back.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}
