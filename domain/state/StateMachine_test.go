package state_test

import (
	"casework/domain/state"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StateMachine", func() {
	var (
		stateMachine *state.StateMachine
	)

	BeforeEach(func() {
		//         PENDING      DOING         DONE
		// PENDING   -            V (begin)   V (close)
		// DOING     V (cancel)   -           V (finish)
		// DONE      X            X           -
		stateMachine = state.NewStateMachine(
			[]state.State{{Name: "PENDING"}, {Name: "DOING"}, {Name: "DONE"}},
			[]state.Transition{
				{Name: "begin", From: state.State{Name: "PENDING"}, To: state.State{Name: "DOING"}},
				{Name: "close", From: state.State{Name: "PENDING"}, To: state.State{Name: "DONE"}},
				{Name: "cancel", From: state.State{Name: "DOING"}, To: state.State{Name: "PENDING"}},
				{Name: "finish", From: state.State{Name: "DOING"}, To: state.State{Name: "DONE"}},
				{Name: "close", From: state.State{Name: "DOING"}, To: state.State{Name: "DONE"}},
			})
	})

	Describe("AvailableTransitions", func() {
		It("should filter by source and target", func() {
			Ω(stateMachine.AvailableTransitions("PENDING", "")).Should(Equal([]state.Transition{
				{Name: "begin", From: state.State{Name: "PENDING"}, To: state.State{Name: "DOING"}},
				{Name: "close", From: state.State{Name: "PENDING"}, To: state.State{Name: "DONE"}},
			}))
			Ω(stateMachine.AvailableTransitions("", "DONE")).Should(HaveLen(3))
			Ω(stateMachine.AvailableTransitions("DOING", "PENDING")).Should(Equal([]state.Transition{
				{Name: "cancel", From: state.State{Name: "DOING"}, To: state.State{Name: "PENDING"}},
			}))
			Ω(stateMachine.AvailableTransitions("UNKNOWN", "")).Should(BeEmpty())
		})
	})

	Describe("Transit", func() {
		It("should resolve the target of an allowed transition", func() {
			to, ok := stateMachine.Transit("close", "DOING")
			Ω(ok).Should(BeTrue())
			Ω(to).Should(Equal(state.State{Name: "DONE"}))

			_, ok = stateMachine.Transit("begin", "DONE")
			Ω(ok).Should(BeFalse())
		})
	})

	Describe("SourceStates", func() {
		It("should list every source of a transition", func() {
			Ω(stateMachine.SourceStates("close")).Should(Equal([]string{"PENDING", "DOING"}))
			Ω(stateMachine.SourceStates("unknown")).Should(Equal([]string{}))
		})
	})

	Describe("IsTerminal", func() {
		It("should detect states without outgoing transitions", func() {
			Ω(stateMachine.IsTerminal("DONE")).Should(BeTrue())
			Ω(stateMachine.IsTerminal("PENDING")).Should(BeFalse())
		})
	})
})
