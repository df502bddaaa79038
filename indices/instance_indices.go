package indices

import (
	"casework/client/es"
	"casework/domain/process"
	"casework/domain/state"
	"context"
	"fmt"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	InstanceIndexName = "workflow_instances"
)

// InstanceDocument is the searchable form of an instance with its steps.
type InstanceDocument struct {
	process.InstanceDetail
	Progress float64 `json:"progress"`
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexInstances(ctx context.Context, instances []process.InstanceDetail) error {
	errs := BatchActionError{}
	for _, inst := range instances {
		doc := InstanceDocument{InstanceDetail: inst, Progress: completion(inst.Steps)}
		if err := es.IndexFunc(ctx, InstanceIndexName, doc.ID, doc); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index instance %d %s: %v", doc.ID, doc.CaseNumber, err)
		} else {
			logrus.Debugf("index instance %d %s successfully", doc.ID, doc.CaseNumber)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func completion(steps []process.StepInstance) float64 {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range steps {
		if state.IsStepDone(s.Status) {
			done++
		}
	}
	return float64(done) * 100 / float64(len(steps))
}
