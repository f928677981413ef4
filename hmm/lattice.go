package hmm

const noPredecessor = -1

// Lattice is the backpointer table of one decode: for every (position, tag) reached, the
// tag at the previous position on the best path into it.
type Lattice struct {
	states   int
	pointers []int32
}

func newLattice(length, states int) *Lattice {
	pointers := make([]int32, length*states)
	for i := range pointers {
		pointers[i] = noPredecessor
	}
	return &Lattice{states: states, pointers: pointers}
}

func (l *Lattice) Len() int {
	if l.states == 0 {
		return 0
	}
	return len(l.pointers) / l.states
}

func (l *Lattice) set(pos, state, prev int) {
	l.pointers[pos*l.states+state] = int32(prev)
}

// Predecessor returns the backpointer stored at (pos, state).
func (l *Lattice) Predecessor(pos, state int) (int, bool) {
	prev := l.pointers[pos*l.states+state]
	return int(prev), prev != noPredecessor
}

// backtrace walks the pointers back from last, the state chosen at the final position.
func (l *Lattice) backtrace(last int) []int {
	path := make([]int, l.Len())
	if len(path) == 0 {
		return path
	}
	path[len(path)-1] = last
	for i := len(path) - 1; i > 0; i-- {
		prev, _ := l.Predecessor(i, path[i])
		path[i-1] = prev
	}
	return path
}
