package domain

// VectorClock maps an actor id to the highest counter observed from that actor.
type VectorClock map[string]uint64

type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "concurrent"
	}
}

func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for actor, n := range vc {
		out[actor] = n
	}
	return out
}

// Merge returns the element-wise maximum of vc and other.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Clone()
	for actor, n := range other {
		if n > out[actor] {
			out[actor] = n
		}
	}
	return out
}

// Compare reports how vc relates to other: Before means vc happened-before other.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	less, greater := false, false

	for actor, n := range vc {
		m := other[actor]
		if n < m {
			less = true
		} else if n > m {
			greater = true
		}
	}
	for actor, m := range other {
		if _, seen := vc[actor]; !seen && m > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Tick returns a copy of vc with actor's entry set to counter if that raises it.
func (vc VectorClock) Tick(actor string, counter uint64) VectorClock {
	return vc.Merge(VectorClock{actor: counter})
}
