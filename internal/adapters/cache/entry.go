package cache

// State distinguishes a key that was never requested from one that is being loaded
// and one that holds data.
type State int

const (
	Absent State = iota
	InProgress
	Present
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case InProgress:
		return "in-progress"
	case Present:
		return "present"
	}
	return "unknown"
}

type Entry[T any] struct {
	State State
	Data  T
}

type ttlEntry[T any] struct {
	data    T
	present bool
}

func (e ttlEntry[T]) toEntry() Entry[T] {
	if !e.present {
		return Entry[T]{State: InProgress}
	}
	return Entry[T]{State: Present, Data: e.data}
}
