package reconcile

import "fmt"

// Op is the kind of write an action represents.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpNoop   Op = "noop"
)

// Action describes one planned or executed write against the mirror.
// Fields lists the tracked fields an update touches; it is empty for
// creates and deletes.
type Action struct {
	Op     Op
	Object string
	Key    string
	Fields []string
}

func (a Action) String() string {
	if a.Op == OpUpdate && len(a.Fields) > 0 {
		return fmt.Sprintf("%s %s %s %v", a.Op, a.Object, a.Key, a.Fields)
	}
	return fmt.Sprintf("%s %s %s", a.Op, a.Object, a.Key)
}

// Summary counts the outcome of a reconciliation pass.
type Summary struct {
	Creates  int
	Updates  int
	Deletes  int
	Noops    int
	Skipped  int
	Failures int
}

// Record counts a successfully executed (or planned, in dry-run) action.
func (s *Summary) Record(op Op) {
	switch op {
	case OpCreate:
		s.Creates++
	case OpUpdate:
		s.Updates++
	case OpDelete:
		s.Deletes++
	case OpNoop:
		s.Noops++
	}
}

// Writes returns the number of mutating calls issued.
func (s *Summary) Writes() int {
	return s.Creates + s.Updates + s.Deletes
}
