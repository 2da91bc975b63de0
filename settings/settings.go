package settings

const (
	CascadeIf = "cascadeif" // treat IF ...: ... THEN as a block IF
	Unchecked = "unchecked" // skip range checks on indirection writes
	TraceLine = "traceline" // emit [lineno] markers while running
	TraceProc = "traceproc" // emit PROC/FN enter and leave markers
	TraceGoto = "tracegoto" // emit [from->to] branch markers
	TraceStep = "tracestep" // pause for a key between statements
)

// Store is a bag of named interpreter switches.
type Store struct {
	flags map[string]bool
}

func NewStore() *Store {
	return &Store{flags: make(map[string]bool)}
}

// Bool reports the state of a switch, false when never set.
func (s *Store) Bool(key string) bool {
	return s.flags[key]
}

func (s *Store) SetBool(key string, on bool) {
	s.flags[key] = on
}
