package process

import (
	"casework/bizerror"
	"casework/domain/flow"
	"casework/domain/sequence"
	"casework/domain/state"
	"casework/event"
	"casework/idgen"
	"casework/persistence"
	"casework/session"
	"errors"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

const (
	resourceInstance = "instance"
	resourceStep     = "step"
)

type TemplateSource interface {
	LoadDetail(tx *gorm.DB, id types.ID) (*flow.TemplateDetail, error)
}

type CaseNumberIssuer interface {
	CurrentYear() int
	IssueCaseNumberTx(tx *gorm.DB, prefix string, year int, description string, identity *session.Identity) (*sequence.CaseNumber, error)
}

type EngineTraits interface {
	CreateInstance(c *InstanceCreation, s *session.Session) (*WorkflowInstance, error)
	Start(instanceID types.ID, s *session.Session) (*InstanceDetail, error)
	CompleteStep(instanceID, stepID types.ID, notes string, s *session.Session) (*InstanceDetail, error)
	SkipStep(instanceID, stepID types.ID, reason string, s *session.Session) (*InstanceDetail, error)
	FailStep(instanceID, stepID types.ID, description string, s *session.Session) (*InstanceDetail, error)
	RetryStep(instanceID, stepID types.ID, s *session.Session) (*InstanceDetail, error)
	AssignStep(instanceID, stepID types.ID, c *StepAssignment, s *session.Session) (*StepInstance, error)
	Abort(instanceID types.ID, reason string, s *session.Session) (*InstanceDetail, error)
	ResolveNext(instanceID, stepID types.ID, s *session.Session) (*StepInstance, error)
	CheckCompletion(instanceID types.ID, s *session.Session) (bool, error)
}

// Engine drives instances and steps through their lifecycles. Every mutating operation runs in
// one transaction that starts by locking the instance row.
type Engine struct {
	ds        *persistence.DataSourceManager
	templates TemplateSource
	numbers   CaseNumberIssuer
	handlers  *event.HandlerTable

	idWorker *sonyflake.Sonyflake
	now      func() time.Time
}

type Option func(e *Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(ds *persistence.DataSourceManager, templates TemplateSource, numbers CaseNumberIssuer,
	handlers *event.HandlerTable, opts ...Option) *Engine {
	e := &Engine{
		ds:        ds,
		templates: templates,
		numbers:   numbers,
		handlers:  handlers,
		idWorker:  idgen.NewWorker(),
		now:       func() time.Time { return time.Now().Round(time.Millisecond) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) CreateInstance(c *InstanceCreation, s *session.Session) (*WorkflowInstance, error) {
	now := e.now()
	inst := WorkflowInstance{
		ID:          idgen.NextID(e.idWorker),
		TemplateID:  c.TemplateID,
		Name:        c.Name,
		Status:      state.InstanceDraft.Name,
		CreatorId:   s.Identity.ID,
		CreatorName: s.Identity.Name,
		SubjectId:   c.SubjectID,
		DueDate:     c.DueDate,
		Notes:       c.Notes,
		CreateTime:  now,
	}
	var ev *event.EventRecord
	err := e.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		detail, err := e.templates.LoadDetail(tx, c.TemplateID)
		if err != nil {
			return err
		}
		if !detail.Active {
			return bizerror.NewValidationError(bizerror.ReasonTemplateInactive, "template '%s' is inactive", detail.Name)
		}
		inst.TemplateName = detail.Name

		// issuance locks the sequence row, only the inserts consuming the number follow it
		if c.WithCaseNumber {
			prefix := detail.ShortCode
			if prefix == "" {
				prefix = sequence.PrefixGeneral
			}
			cn, err := e.numbers.IssueCaseNumberTx(tx, prefix, e.numbers.CurrentYear(), c.Name, &s.Identity)
			if err != nil {
				return err
			}
			inst.CaseNumberId = cn.ID
			inst.CaseNumber = cn.Value
		}
		if err := tx.Create(&inst).Error; err != nil {
			return err
		}
		ev, err = event.CreateEvent(event.SourceTypeInstance, inst.ID, inst.Name, event.EventCategoryCreated,
			[]event.UpdatedProperty{{PropertyName: "Status", NewValue: inst.Status},
				{PropertyName: "CaseNumber", NewValue: inst.CaseNumber}}, &s.Identity, now, tx)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	logrus.WithFields(logrus.Fields{"instance": inst.ID, "caseNumber": inst.CaseNumber}).Info("instance created")
	e.handlers.Dispatch(ev)
	return &inst, nil
}

func (e *Engine) Start(instanceID types.ID, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "start", func(m *mutation) error {
		detail, err := e.templates.LoadDetail(m.tx, m.inst.TemplateID)
		if err != nil {
			return err
		}
		if len(detail.Steps) == 0 {
			return bizerror.NewValidationError(bizerror.ReasonNoStepsDefined, "template '%s' has no steps", detail.Name)
		}
		if err := m.transitInstance(state.TransitionStart, map[string]interface{}{"start_time": m.now}); err != nil {
			return err
		}
		m.inst.StartTime = &m.now

		for _, def := range detail.Steps {
			step := StepInstance{
				ID:               idgen.NextID(e.idWorker),
				InstanceID:       m.inst.ID,
				StepDefinitionID: def.ID,
				OrderIndex:       def.OrderIndex,
				Name:             def.Name,
				Optional:         def.Optional,
				DefaultRole:      def.DefaultRole,
				Status:           state.StepPending.Name,
			}
			if err := m.tx.Create(&step).Error; err != nil {
				return err
			}
			m.steps = append(m.steps, step)
		}
		// detail steps come sorted by order index
		return m.activate(&m.steps[0])
	})
}

func (e *Engine) CompleteStep(instanceID, stepID types.ID, notes string, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "complete step", func(m *mutation) error {
		step, err := m.activeInstanceStep(stepID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"complete_time": m.now}
		if notes != "" {
			updates["notes"] = notes
		}
		if step.StartTime == nil {
			updates["start_time"] = m.now
		}
		if err := m.transitStep(step, state.TransitionComplete, updates); err != nil {
			return err
		}
		return m.advance(step)
	})
}

func (e *Engine) SkipStep(instanceID, stepID types.ID, reason string, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "skip step", func(m *mutation) error {
		step, err := m.activeInstanceStep(stepID)
		if err != nil {
			return err
		}
		if !step.Optional {
			return bizerror.NewValidationError(bizerror.ReasonStepNotOptional, "step '%s' is not optional", step.Name)
		}
		if err := m.transitStep(step, state.TransitionSkip, map[string]interface{}{
			"complete_time": m.now, "notes": "Skipped: " + reason}); err != nil {
			return err
		}
		return m.advance(step)
	})
}

func (e *Engine) FailStep(instanceID, stepID types.ID, description string, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "fail step", func(m *mutation) error {
		step, err := m.activeInstanceStep(stepID)
		if err != nil {
			return err
		}
		return m.transitStep(step, state.TransitionFail, map[string]interface{}{
			"complete_time": m.now, "notes": "Failed: " + description})
	})
}

func (e *Engine) RetryStep(instanceID, stepID types.ID, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "retry step", func(m *mutation) error {
		step, err := m.activeInstanceStep(stepID)
		if err != nil {
			return err
		}
		// one step is current at a time
		for i := range m.steps {
			if other := &m.steps[i]; other.ID != step.ID && other.Status == state.StepInProgress.Name {
				return bizerror.NewValidationError(bizerror.ReasonInvalidState,
					"step '%s' is in progress, step '%s' cannot be retried", other.Name, step.Name)
			}
		}
		return m.transitStep(step, state.TransitionRetry, map[string]interface{}{
			"start_time": m.now, "complete_time": gorm.Expr("NULL")})
	})
}

func (e *Engine) AssignStep(instanceID, stepID types.ID, c *StepAssignment, s *session.Session) (*StepInstance, error) {
	var assigned *StepInstance
	_, err := e.mutate(instanceID, s, "assign step", func(m *mutation) error {
		step, err := m.activeInstanceStep(stepID)
		if err != nil {
			return err
		}
		sources := []string{state.StepPending.Name, state.StepInProgress.Name}
		if !contains(sources, step.Status) {
			return bizerror.NewValidationError(bizerror.ReasonInvalidState, "step '%s' is %s", step.Name, step.Status)
		}
		db := m.tx.Model(&StepInstance{}).Where("id = ? AND status IN (?)", step.ID, sources).
			Updates(map[string]interface{}{"assignee_id": c.AssigneeID, "assignee_name": c.AssigneeName})
		if db.Error != nil {
			return db.Error
		}
		if db.RowsAffected != 1 {
			return &bizerror.ConcurrencyError{Cause: fmt.Errorf("step %s changed concurrently", step.ID)}
		}
		oldAssignee := step.AssigneeName
		step.AssigneeId, step.AssigneeName = c.AssigneeID, c.AssigneeName
		assigned = step
		return m.record(event.EventCategoryStepUpdated, event.UpdatedProperty{
			PropertyName: "Assignee", PropertyDesc: step.Name, OldValue: oldAssignee, NewValue: c.AssigneeName})
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// Abort terminates a draft or active instance and fails every step still in progress.
func (e *Engine) Abort(instanceID types.ID, reason string, s *session.Session) (*InstanceDetail, error) {
	return e.mutate(instanceID, s, "abort", func(m *mutation) error {
		notes := "Aborted: " + reason
		if m.inst.Notes != "" {
			notes = m.inst.Notes + "\n" + notes
		}
		if err := m.transitInstance(state.TransitionAbort, map[string]interface{}{
			"complete_time": m.now, "notes": notes}); err != nil {
			return err
		}
		m.inst.CompleteTime, m.inst.Notes = &m.now, notes

		for i := range m.steps {
			if m.steps[i].Status != state.StepInProgress.Name {
				continue
			}
			if err := m.transitStep(&m.steps[i], state.TransitionFail, map[string]interface{}{
				"complete_time": m.now, "notes": "Aborted: " + reason}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolveNext returns the step that follows stepID in the instance, or nil.
func (e *Engine) ResolveNext(instanceID, stepID types.ID, s *session.Session) (*StepInstance, error) {
	var next *StepInstance
	err := e.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		inst, steps, err := loadInstance(tx, instanceID, false)
		if err != nil {
			return err
		}
		from := findStep(steps, stepID)
		if from == nil {
			return e.stepNotInInstance(tx, stepID)
		}
		detail, err := e.templates.LoadDetail(tx, inst.TemplateID)
		if err != nil {
			return err
		}
		next = resolveNext(detail.Outgoing(from.StepDefinitionID), steps, from)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// CheckCompletion reports whether every step of the instance is completed or skipped.
func (e *Engine) CheckCompletion(instanceID types.ID, s *session.Session) (bool, error) {
	_, steps, err := loadInstance(e.ds.GormDB(s.Context), instanceID, false)
	if err != nil {
		return false, err
	}
	return allStepsDone(steps), nil
}

func (e *Engine) stepNotInInstance(tx *gorm.DB, stepID types.ID) error {
	var count int
	if err := tx.Model(&StepInstance{}).Where("id = ?", stepID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return bizerror.NewValidationError(bizerror.ReasonInvalidOwnership, "step %s belongs to another instance", stepID)
	}
	return bizerror.NewNotFoundError(resourceStep, stepID)
}

// mutation carries the state of one engine operation inside its transaction.
type mutation struct {
	engine   *Engine
	tx       *gorm.DB
	identity *session.Identity
	now      time.Time

	inst    *WorkflowInstance
	steps   []StepInstance
	records []*event.EventRecord
}

func (e *Engine) mutate(instanceID types.ID, s *session.Session, operation string, fn func(m *mutation) error) (*InstanceDetail, error) {
	opID := uuid.New().String()
	var m *mutation
	err := e.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		inst, steps, err := loadInstance(tx, instanceID, true)
		if err != nil {
			return err
		}
		m = &mutation{engine: e, tx: tx, identity: &s.Identity, now: e.now(), inst: inst, steps: steps}
		return fn(m)
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, bizerror.ErrIntegrity) {
			logrus.WithFields(logrus.Fields{"op": opID, "instance": instanceID}).Error(operation, ": ", err)
		} else {
			logrus.WithFields(logrus.Fields{"op": opID, "instance": instanceID}).Info(operation, " rejected: ", err)
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"op": opID, "instance": instanceID, "status": m.inst.Status}).Info(operation)
	e.handlers.Dispatch(m.records...)
	return &InstanceDetail{WorkflowInstance: *m.inst, Steps: m.steps}, nil
}

// activeInstanceStep returns the addressed step after checking the instance is active and owns it.
func (m *mutation) activeInstanceStep(stepID types.ID) (*StepInstance, error) {
	if m.inst.Status != state.InstanceActive.Name {
		return nil, bizerror.NewValidationError(bizerror.ReasonInvalidState, "instance %s is %s", m.inst.ID, m.inst.Status)
	}
	step := findStep(m.steps, stepID)
	if step == nil {
		return nil, m.engine.stepNotInInstance(m.tx, stepID)
	}
	return step, nil
}

func (m *mutation) transitInstance(transition string, updates map[string]interface{}) error {
	to, ok := state.InstanceLifecycle.Transit(transition, m.inst.Status)
	if !ok {
		return bizerror.NewValidationError(bizerror.ReasonInvalidState, "instance %s is %s", m.inst.ID, m.inst.Status)
	}
	from := m.inst.Status
	updates["status"] = to.Name
	db := m.tx.Model(&WorkflowInstance{}).Where("id = ? AND status = ?", m.inst.ID, from).Updates(updates)
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected != 1 {
		return &bizerror.ConcurrencyError{Cause: fmt.Errorf("instance %s changed concurrently", m.inst.ID)}
	}
	m.inst.Status = to.Name
	return m.record(event.EventCategoryPropertyUpdated, event.UpdatedProperty{
		PropertyName: "Status", OldValue: from, NewValue: to.Name})
}

// transitStep applies a step transition with a compare-and-set on the source states.
func (m *mutation) transitStep(step *StepInstance, transition string, updates map[string]interface{}) error {
	to, ok := state.StepLifecycle.Transit(transition, step.Status)
	if !ok {
		return bizerror.NewValidationError(bizerror.ReasonInvalidState, "step '%s' is %s", step.Name, step.Status)
	}
	from := step.Status
	updates["status"] = to.Name
	db := m.tx.Model(&StepInstance{}).Where("id = ? AND status IN (?)", step.ID,
		state.StepLifecycle.SourceStates(transition)).Updates(updates)
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected != 1 {
		return &bizerror.ConcurrencyError{Cause: fmt.Errorf("step %s changed concurrently", step.ID)}
	}
	applyStepUpdates(step, updates)
	return m.record(event.EventCategoryStepUpdated, event.UpdatedProperty{
		PropertyName: "Status", PropertyDesc: step.Name, OldValue: from, NewValue: to.Name})
}

func (m *mutation) activate(step *StepInstance) error {
	return m.transitStep(step, state.TransitionActivate, map[string]interface{}{"start_time": m.now})
}

// advance moves the instance on after step reached completed or skipped.
func (m *mutation) advance(step *StepInstance) error {
	for i := range m.steps {
		other := &m.steps[i]
		if other.ID != step.ID && (other.Status == state.StepInProgress.Name || other.Status == state.StepFailed.Name) {
			return nil
		}
	}

	detail, err := m.engine.templates.LoadDetail(m.tx, m.inst.TemplateID)
	if err != nil {
		return err
	}
	visited := map[types.ID]bool{step.ID: true}
	current := step
	for {
		next := resolveNext(detail.Outgoing(current.StepDefinitionID), m.steps, current)
		if next == nil || visited[next.ID] {
			break
		}
		visited[next.ID] = true
		if next.Status == state.StepPending.Name {
			return m.activate(next)
		}
		if !state.IsStepDone(next.Status) {
			break
		}
		current = next
	}

	if allStepsDone(m.steps) {
		if err := m.transitInstance(state.TransitionFinish, map[string]interface{}{"complete_time": m.now}); err != nil {
			return err
		}
		m.inst.CompleteTime = &m.now
		return nil
	}
	// pending steps the graph did not reach keep the instance going in order
	if pending := lowestPending(m.steps); pending != nil {
		return m.activate(pending)
	}
	return nil
}

func (m *mutation) record(category event.EventCategory, props ...event.UpdatedProperty) error {
	ev, err := event.CreateEvent(event.SourceTypeInstance, m.inst.ID, m.inst.Name, category, props, m.identity, m.now, m.tx)
	if err != nil {
		return err
	}
	m.records = append(m.records, ev)
	return nil
}

func loadInstance(tx *gorm.DB, instanceID types.ID, lock bool) (*WorkflowInstance, []StepInstance, error) {
	inst := WorkflowInstance{}
	q := tx
	if lock {
		q = persistence.ForUpdate(tx)
	}
	if err := q.Where("id = ?", instanceID).First(&inst).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, bizerror.NewNotFoundError(resourceInstance, instanceID)
	} else if err != nil {
		return nil, nil, err
	}
	var steps []StepInstance
	if err := tx.Where("instance_id = ?", instanceID).Order("order_index ASC").Find(&steps).Error; err != nil {
		return nil, nil, err
	}
	if steps == nil {
		steps = []StepInstance{}
	}
	return &inst, steps, nil
}

// resolveNext picks the follower of from: among explicit edges the target with the lowest order
// index wins, ties go to the lower step definition id. Edges to steps the instance does not hold
// are ignored. Without edges the step with the next order index follows.
func resolveNext(outgoing []flow.StepTransition, steps []StepInstance, from *StepInstance) *StepInstance {
	var best *StepInstance
	for _, t := range outgoing {
		target := findStepByDefinition(steps, t.ToStepID)
		if target == nil {
			continue
		}
		if best == nil || target.OrderIndex < best.OrderIndex ||
			(target.OrderIndex == best.OrderIndex && target.StepDefinitionID < best.StepDefinitionID) {
			best = target
		}
	}
	if best != nil {
		return best
	}
	for i := range steps {
		if steps[i].OrderIndex == from.OrderIndex+1 {
			return &steps[i]
		}
	}
	return nil
}

func allStepsDone(steps []StepInstance) bool {
	for _, s := range steps {
		if !state.IsStepDone(s.Status) {
			return false
		}
	}
	return true
}

func lowestPending(steps []StepInstance) *StepInstance {
	var r *StepInstance
	for i := range steps {
		if steps[i].Status == state.StepPending.Name && (r == nil || steps[i].OrderIndex < r.OrderIndex) {
			r = &steps[i]
		}
	}
	return r
}

func findStep(steps []StepInstance, id types.ID) *StepInstance {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
	}
	return nil
}

func findStepByDefinition(steps []StepInstance, definitionID types.ID) *StepInstance {
	for i := range steps {
		if steps[i].StepDefinitionID == definitionID {
			return &steps[i]
		}
	}
	return nil
}

func applyStepUpdates(step *StepInstance, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			step.Status = v.(string)
		case "notes":
			step.Notes = v.(string)
		case "start_time":
			t := v.(time.Time)
			step.StartTime = &t
		case "complete_time":
			if t, ok := v.(time.Time); ok {
				step.CompleteTime = &t
			} else {
				step.CompleteTime = nil
			}
		}
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func classify(err error) error {
	if persistence.IsLockContentionError(err) {
		return &bizerror.ConcurrencyError{Cause: err}
	}
	return err
}
