package calendar

type mutationKind int

const (
	mutationMove mutationKind = iota + 1
	mutationMerge
	mutationCount
	mutationDelete
)

func (k mutationKind) String() string {
	switch k {
	case mutationMove:
		return "move"
	case mutationMerge:
		return "merge"
	case mutationCount:
		return "count"
	case mutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// mutation records the touched entries before and after an edit. A nil entry
// means absent.
type mutation struct {
	kind   mutationKind
	before map[int64]*Entry
	after  map[int64]*Entry
}

func newMutation(kind mutationKind) mutation {
	return mutation{
		kind:   kind,
		before: map[int64]*Entry{},
		after:  map[int64]*Entry{},
	}
}

func (m mutation) touch(id int64, before, after *Entry) mutation {
	m.before[id] = clone(before)
	m.after[id] = clone(after)
	return m
}

func (m mutation) inverse() mutation {
	return mutation{kind: m.kind, before: m.after, after: m.before}
}

func clone(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
