package process

import (
	"casework/domain/flow"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestResolveNext(t *testing.T) {
	RegisterTestingT(t)

	steps := []StepInstance{
		{ID: 101, StepDefinitionID: 11, OrderIndex: 1},
		{ID: 102, StepDefinitionID: 12, OrderIndex: 2},
		{ID: 103, StepDefinitionID: 13, OrderIndex: 3},
		{ID: 104, StepDefinitionID: 14, OrderIndex: 3},
	}

	t.Run("should fall back to the next order index", func(t *testing.T) {
		Expect(resolveNext(nil, steps, &steps[0]).ID).To(Equal(types.ID(102)))
		Expect(resolveNext([]flow.StepTransition{}, steps, &steps[2])).To(BeNil())
	})

	t.Run("should prefer the edge target with the lowest order index", func(t *testing.T) {
		edges := []flow.StepTransition{{FromStepID: 11, ToStepID: 13}, {FromStepID: 11, ToStepID: 12}}
		Expect(resolveNext(edges, steps, &steps[0]).ID).To(Equal(types.ID(102)))
	})

	t.Run("should break order ties by step definition id", func(t *testing.T) {
		edges := []flow.StepTransition{{FromStepID: 11, ToStepID: 14}, {FromStepID: 11, ToStepID: 13}}
		Expect(resolveNext(edges, steps, &steps[0]).ID).To(Equal(types.ID(103)))
	})

	t.Run("should ignore edges to unknown steps", func(t *testing.T) {
		edges := []flow.StepTransition{{FromStepID: 11, ToStepID: 99}}
		Expect(resolveNext(edges, steps, &steps[0]).ID).To(Equal(types.ID(102)))
	})
}

func TestSummarize(t *testing.T) {
	RegisterTestingT(t)

	Expect(*summarize([]StepInstance{})).To(Equal(InstanceStatistics{}))
	Expect(*summarize([]StepInstance{{Status: "completed"}, {Status: "skipped"}, {Status: "failed"},
		{Status: "in_progress"}, {Status: "pending"}})).To(Equal(InstanceStatistics{
		Total: 5, Pending: 1, InProgress: 1, Completed: 1, Skipped: 1, Failed: 1, CompletionPercentage: 40}))
}

func TestAllStepsDone(t *testing.T) {
	RegisterTestingT(t)

	Expect(allStepsDone([]StepInstance{{Status: "completed"}, {Status: "skipped"}})).To(BeTrue())
	Expect(allStepsDone([]StepInstance{{Status: "completed"}, {Status: "failed"}})).To(BeFalse())
	Expect(lowestPending([]StepInstance{{ID: 2, OrderIndex: 5, Status: "pending"}, {ID: 1, OrderIndex: 2,
		Status: "pending"}, {ID: 3, OrderIndex: 1, Status: "completed"}}).ID).To(Equal(types.ID(1)))
}
