package state_test

import (
	"casework/domain/state"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Lifecycles", func() {
	Describe("InstanceLifecycle", func() {
		It("should only leave draft and active", func() {
			Ω(state.InstanceLifecycle.IsTerminal(state.InstanceCompleted.Name)).Should(BeTrue())
			Ω(state.InstanceLifecycle.IsTerminal(state.InstanceAborted.Name)).Should(BeTrue())

			to, ok := state.InstanceLifecycle.Transit(state.TransitionStart, state.InstanceDraft.Name)
			Ω(ok).Should(BeTrue())
			Ω(to).Should(Equal(state.InstanceActive))

			_, ok = state.InstanceLifecycle.Transit(state.TransitionFinish, state.InstanceDraft.Name)
			Ω(ok).Should(BeFalse())
			_, ok = state.InstanceLifecycle.Transit(state.TransitionAbort, state.InstanceAborted.Name)
			Ω(ok).Should(BeFalse())

			Ω(state.InstanceLifecycle.SourceStates(state.TransitionAbort)).Should(Equal([]string{"draft", "active"}))
		})
	})

	Describe("StepLifecycle", func() {
		It("should never revert completed or skipped steps", func() {
			Ω(state.StepLifecycle.IsTerminal(state.StepCompleted.Name)).Should(BeTrue())
			Ω(state.StepLifecycle.IsTerminal(state.StepSkipped.Name)).Should(BeTrue())
			Ω(state.StepLifecycle.IsTerminal(state.StepFailed.Name)).Should(BeFalse())
		})

		It("should expose the sources used for compare-and-set updates", func() {
			Ω(state.StepLifecycle.SourceStates(state.TransitionComplete)).Should(Equal([]string{"pending", "in_progress"}))
			Ω(state.StepLifecycle.SourceStates(state.TransitionSkip)).Should(Equal([]string{"pending", "in_progress"}))
			Ω(state.StepLifecycle.SourceStates(state.TransitionFail)).Should(Equal([]string{"pending", "in_progress"}))
			Ω(state.StepLifecycle.SourceStates(state.TransitionRetry)).Should(Equal([]string{"failed"}))
			Ω(state.StepLifecycle.SourceStates(state.TransitionActivate)).Should(Equal([]string{"pending"}))
		})

		It("should retry failed steps into in_progress", func() {
			to, ok := state.StepLifecycle.Transit(state.TransitionRetry, state.StepFailed.Name)
			Ω(ok).Should(BeTrue())
			Ω(to).Should(Equal(state.StepInProgress))
		})

		It("should count completed and skipped as done", func() {
			Ω(state.IsStepDone("completed")).Should(BeTrue())
			Ω(state.IsStepDone("skipped")).Should(BeTrue())
			Ω(state.IsStepDone("failed")).Should(BeFalse())
			Ω(state.IsStepDone("in_progress")).Should(BeFalse())
		})
	})
})
