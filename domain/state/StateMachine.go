package state

type StateMachineTraits interface {
	AvailableTransitions(fromState string, toState string) []Transition
	Transit(transitionName string, fromState string) (State, bool)
	SourceStates(transitionName string) []string
}

// stateless object, just used for state computing
type StateMachine struct {
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

type Category uint

const (
	InBacklog Category = iota
	InProcess
	Done
)

type State struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

type Transition struct {
	Name string `json:"name"`
	From State  `json:"from"`
	To   State  `json:"to"`
}

func NewStateMachine(states []State, transitions []Transition) *StateMachine {
	return &StateMachine{States: states, Transitions: transitions}
}

func (sm *StateMachine) AvailableTransitions(fromState string, toState string) []Transition {
	r := []Transition{}
	for _, transition := range sm.Transitions {
		if (fromState == "" || fromState == transition.From.Name) && (toState == "" || toState == transition.To.Name) {
			r = append(r, transition)
		}
	}
	return r
}

// Transit returns the target of the named transition when it may leave fromState.
func (sm *StateMachine) Transit(transitionName string, fromState string) (State, bool) {
	for _, transition := range sm.Transitions {
		if transition.Name == transitionName && transition.From.Name == fromState {
			return transition.To, true
		}
	}
	return State{}, false
}

// SourceStates lists the states the named transition may leave, in declaration order.
func (sm *StateMachine) SourceStates(transitionName string) []string {
	r := []string{}
	for _, transition := range sm.Transitions {
		if transition.Name == transitionName {
			r = append(r, transition.From.Name)
		}
	}
	return r
}

func (sm *StateMachine) IsTerminal(stateName string) bool {
	return len(sm.AvailableTransitions(stateName, "")) == 0
}
