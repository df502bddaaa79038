package state

var (
	InstanceDraft     = State{Name: "draft", Category: InBacklog}
	InstanceActive    = State{Name: "active", Category: InProcess}
	InstanceCompleted = State{Name: "completed", Category: Done}
	InstanceAborted   = State{Name: "aborted", Category: Done}

	StepPending    = State{Name: "pending", Category: InBacklog}
	StepInProgress = State{Name: "in_progress", Category: InProcess}
	StepCompleted  = State{Name: "completed", Category: Done}
	StepSkipped    = State{Name: "skipped", Category: Done}
	StepFailed     = State{Name: "failed", Category: InProcess}
)

const (
	TransitionStart    = "start"
	TransitionFinish   = "finish"
	TransitionAbort    = "abort"
	TransitionActivate = "activate"
	TransitionComplete = "complete"
	TransitionSkip     = "skip"
	TransitionFail     = "fail"
	TransitionRetry    = "retry"
)

//            draft        active       completed     aborted
// draft        -          V (start)       X          V (abort)
// active       X             -         V (finish)    V (abort)
// completed    X             X            -             X
// aborted      X             X            X             -
var InstanceLifecycle = NewStateMachine(
	[]State{InstanceDraft, InstanceActive, InstanceCompleted, InstanceAborted},
	[]Transition{
		{Name: TransitionStart, From: InstanceDraft, To: InstanceActive},
		{Name: TransitionFinish, From: InstanceActive, To: InstanceCompleted},
		{Name: TransitionAbort, From: InstanceDraft, To: InstanceAborted},
		{Name: TransitionAbort, From: InstanceActive, To: InstanceAborted},
	})

// completed and skipped never revert; failed only leaves through retry
var StepLifecycle = NewStateMachine(
	[]State{StepPending, StepInProgress, StepCompleted, StepSkipped, StepFailed},
	[]Transition{
		{Name: TransitionActivate, From: StepPending, To: StepInProgress},
		{Name: TransitionComplete, From: StepPending, To: StepCompleted},
		{Name: TransitionComplete, From: StepInProgress, To: StepCompleted},
		{Name: TransitionSkip, From: StepPending, To: StepSkipped},
		{Name: TransitionSkip, From: StepInProgress, To: StepSkipped},
		{Name: TransitionFail, From: StepPending, To: StepFailed},
		{Name: TransitionFail, From: StepInProgress, To: StepFailed},
		{Name: TransitionRetry, From: StepFailed, To: StepInProgress},
	})

// IsStepDone reports whether a step counts as finished for instance completion.
func IsStepDone(stepStatus string) bool {
	return stepStatus == StepCompleted.Name || stepStatus == StepSkipped.Name
}
