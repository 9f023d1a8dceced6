package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	op    string
	id    int64
	patch Patch
}

type fakePersister struct {
	mu       sync.Mutex
	calls    []call
	updateFn func(id int64, patch Patch) (Entry, error)
	deleteFn func(id int64) error
}

func (f *fakePersister) UpdateScheduledRecipe(_ context.Context, id int64, patch Patch) (Entry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "update", id: id, patch: patch})
	fn := f.updateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(id, patch)
	}
	return Entry{}, nil
}

func (f *fakePersister) DeleteScheduledRecipe(_ context.Context, id int64) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "delete", id: id})
	fn := f.deleteFn
	f.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return nil
}

func (f *fakePersister) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seed() []Entry {
	return []Entry{
		{ID: 1, RecipeID: 10, RecipeName: "Tacos", On: day("2024-03-04"), Count: 1},
		{ID: 2, RecipeID: 10, RecipeName: "Tacos", On: day("2024-03-06"), Count: 2},
		{ID: 3, RecipeID: 11, RecipeName: "Curry", On: day("2024-03-06"), Count: 1},
	}
}

func TestMoveToEmptyDay(t *testing.T) {
	persister := &fakePersister{}
	board := NewBoard(seed(), persister, nil)

	pending, err := board.Move(context.Background(), 1, day("2024-03-05"))
	require.NoError(t, err)

	moved, ok := board.Get(1)
	require.True(t, ok)
	assert.True(t, moved.On.Equal(day("2024-03-05")))

	require.NoError(t, pending.Wait())
	board.Wait()

	calls := persister.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "update", calls[0].op)
	require.NotNil(t, calls[0].patch.On)
	assert.True(t, calls[0].patch.On.Equal(day("2024-03-05")))
}

func TestMoveMergesWithSameRecipe(t *testing.T) {
	persister := &fakePersister{}
	board := NewBoard(seed(), persister, nil)

	pending, err := board.Move(context.Background(), 1, day("2024-03-06"))
	require.NoError(t, err)

	_, ok := board.Get(1)
	assert.False(t, ok)
	sink, ok := board.Get(2)
	require.True(t, ok)
	assert.Equal(t, 3, sink.Count)

	require.NoError(t, pending.Wait())
	board.Wait()

	calls := persister.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "update", calls[0].op)
	assert.Equal(t, int64(2), calls[0].id)
	require.NotNil(t, calls[0].patch.Count)
	assert.Equal(t, 3, *calls[0].patch.Count)
	assert.Equal(t, call{op: "delete", id: 1}, calls[1])
}

func TestMergeRollsBackWhenDeleteFails(t *testing.T) {
	persister := &fakePersister{deleteFn: func(int64) error { return errors.New("500") }}
	board := NewBoard(seed(), persister, nil)

	pending, err := board.Move(context.Background(), 1, day("2024-03-06"))
	require.NoError(t, err)
	require.ErrorIs(t, pending.Wait(), ErrPersistence)
	board.Wait()

	source, ok := board.Get(1)
	require.True(t, ok)
	assert.True(t, source.On.Equal(day("2024-03-04")))
	sink, _ := board.Get(2)
	assert.Equal(t, 2, sink.Count)

	calls := persister.Calls()
	require.Len(t, calls, 3)
	require.NotNil(t, calls[2].patch.Count)
	assert.Equal(t, 2, *calls[2].patch.Count, "sink count restored on the server")
}

func TestMergeCompensationKeepsNewerSinkCount(t *testing.T) {
	gate := make(chan struct{})
	persister := &fakePersister{deleteFn: func(int64) error {
		<-gate
		return errors.New("500")
	}}
	board := NewBoard(seed(), persister, nil)
	ctx := context.Background()

	merged, err := board.Move(ctx, 1, day("2024-03-06"))
	require.NoError(t, err)
	counted, err := board.SetCount(ctx, 2, 5)
	require.NoError(t, err)
	require.NoError(t, counted.Wait())

	close(gate)
	require.ErrorIs(t, merged.Wait(), ErrPersistence)
	board.Wait()

	sink, _ := board.Get(2)
	assert.Equal(t, 5, sink.Count)
	_, ok := board.Get(1)
	assert.True(t, ok, "source restored")

	calls := persister.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "update", last.op)
	assert.Equal(t, int64(2), last.id)
	require.NotNil(t, last.patch.Count)
	assert.Equal(t, 5, *last.patch.Count, "compensation keeps the newer count")
}

func TestMergeCompensationSkipsRemovedSink(t *testing.T) {
	gate := make(chan struct{})
	persister := &fakePersister{deleteFn: func(id int64) error {
		if id == 1 {
			<-gate
			return errors.New("500")
		}
		return nil
	}}
	board := NewBoard(seed(), persister, nil)
	ctx := context.Background()

	merged, err := board.Move(ctx, 1, day("2024-03-06"))
	require.NoError(t, err)
	removed, err := board.SetCount(ctx, 2, 0)
	require.NoError(t, err)
	require.NoError(t, removed.Wait())

	close(gate)
	require.ErrorIs(t, merged.Wait(), ErrPersistence)
	board.Wait()

	_, ok := board.Get(2)
	assert.False(t, ok)
	updates := 0
	for _, c := range persister.Calls() {
		if c.op == "update" {
			updates++
		}
	}
	assert.Equal(t, 1, updates, "no write back to a removed sink")
}

func TestMoveRollsBackOnFailure(t *testing.T) {
	persister := &fakePersister{updateFn: func(int64, Patch) (Entry, error) {
		return Entry{}, errors.New("offline")
	}}
	board := NewBoard(seed(), persister, nil)

	pending, err := board.Move(context.Background(), 3, day("2024-03-09"))
	require.NoError(t, err)
	require.ErrorIs(t, pending.Wait(), ErrPersistence)
	board.Wait()

	entry, _ := board.Get(3)
	assert.True(t, entry.On.Equal(day("2024-03-06")))
}

func TestRollbackLeavesNewerEdits(t *testing.T) {
	gate := make(chan struct{})
	persister := &fakePersister{updateFn: func(_ int64, patch Patch) (Entry, error) {
		if patch.On != nil {
			<-gate
			return Entry{}, errors.New("offline")
		}
		return Entry{}, nil
	}}
	board := NewBoard(seed(), persister, nil)
	ctx := context.Background()

	moved, err := board.Move(ctx, 3, day("2024-03-09"))
	require.NoError(t, err)
	counted, err := board.SetCount(ctx, 3, 4)
	require.NoError(t, err)
	require.NoError(t, counted.Wait())

	close(gate)
	require.ErrorIs(t, moved.Wait(), ErrPersistence)
	board.Wait()

	entry, _ := board.Get(3)
	assert.Equal(t, 4, entry.Count)
	assert.True(t, entry.On.Equal(day("2024-03-09")))
}

func TestSetCount(t *testing.T) {
	persister := &fakePersister{updateFn: func(id int64, patch Patch) (Entry, error) {
		return Entry{ID: id, RecipeID: 11, On: day("2024-03-06"), Count: *patch.Count}, nil
	}}
	board := NewBoard(seed(), persister, nil)
	ctx := context.Background()

	pending, err := board.SetCount(ctx, 3, 5)
	require.NoError(t, err)
	require.NoError(t, pending.Wait())
	entry, _ := board.Get(3)
	assert.Equal(t, 5, entry.Count)
	assert.Equal(t, "Curry", entry.RecipeName)

	pending, err = board.SetCount(ctx, 3, 0)
	require.NoError(t, err)
	require.NoError(t, pending.Wait())
	board.Wait()
	_, ok := board.Get(3)
	assert.False(t, ok)

	_, err = board.SetCount(ctx, 42, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRollsBack(t *testing.T) {
	persister := &fakePersister{deleteFn: func(int64) error { return errors.New("nope") }}
	board := NewBoard(seed(), persister, nil)

	pending, err := board.SetCount(context.Background(), 2, 0)
	require.NoError(t, err)
	require.ErrorIs(t, pending.Wait(), ErrPersistence)
	board.Wait()

	entry, ok := board.Get(2)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)
}

func TestDays(t *testing.T) {
	board := NewBoard(seed(), &fakePersister{}, nil)
	days := board.Days(day("2024-03-04"), day("2024-03-06"))
	require.Len(t, days, 3)
	assert.Len(t, days[0].Entries, 1)
	assert.Empty(t, days[1].Entries)
	require.Len(t, days[2].Entries, 2)
	assert.Equal(t, "Curry", days[2].Entries[0].RecipeName)
	assert.Equal(t, "Tacos", days[2].Entries[1].RecipeName)
}

func TestMoveUnknownOrSameDay(t *testing.T) {
	persister := &fakePersister{}
	board := NewBoard(seed(), persister, nil)

	_, err := board.Move(context.Background(), 99, day("2024-03-05"))
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := board.Move(context.Background(), 1, day("2024-03-04").Add(13*time.Hour))
	require.NoError(t, err)
	assert.NoError(t, pending.Wait())
	assert.Empty(t, persister.Calls())
}
