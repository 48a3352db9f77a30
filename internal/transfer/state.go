package transfer

import "fmt"

// State is a phase of a fund transfer.
type State int

const (
	Validating State = iota
	DebitingSource
	CreditingDestination
	Committed
	Aborted
)

var stateNames = map[State]string{
	Validating:           "validating",
	DebitingSource:       "debiting_source",
	CreditingDestination: "crediting_destination",
	Committed:            "committed",
	Aborted:              "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Committed || s == Aborted
}

var transitions = map[State][]State{
	Validating:           {DebitingSource, Aborted},
	DebitingSource:       {CreditingDestination, Aborted},
	CreditingDestination: {Committed, Aborted},
}

// machine tracks one transfer through its phases. Any non-terminal phase may
// abort; the remaining moves run strictly forward.
type machine struct {
	state State
	// failedIn is the phase that was active when the transfer aborted.
	failedIn State
}

func newMachine() *machine {
	return &machine{state: Validating}
}

func (m *machine) advance(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			if next == Aborted {
				m.failedIn = m.state
			}
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal transfer transition %s -> %s", m.state, next)
}
