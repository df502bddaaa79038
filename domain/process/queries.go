package process

import (
	"casework/domain/state"
	"casework/event"
	"casework/session"

	"github.com/fundwit/go-commons/types"
)

type QueryTraits interface {
	QueryInstances(q *InstanceQuery, s *session.Session) ([]WorkflowInstance, error)
	DetailInstance(instanceID types.ID, s *session.Session) (*InstanceDetail, error)
	ListStepInstances(instanceID types.ID, s *session.Session) ([]StepInstance, error)
	CurrentSteps(instanceID types.ID, s *session.Session) ([]StepInstance, error)
	Statistics(instanceID types.ID, s *session.Session) (*InstanceStatistics, error)
	MyTasks(s *session.Session) ([]Task, error)
	ListInstanceEvents(instanceID types.ID, s *session.Session) ([]event.EventRecord, error)
}

func (e *Engine) QueryInstances(q *InstanceQuery, s *session.Session) ([]WorkflowInstance, error) {
	db := e.ds.GormDB(s.Context).Model(&WorkflowInstance{})
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.TemplateID != 0 {
		db = db.Where("template_id = ?", q.TemplateID)
	}
	if q.Term != "" {
		like := "%" + q.Term + "%"
		db = db.Where("name LIKE ? OR case_number LIKE ?", like, like)
	}
	var instances []WorkflowInstance
	if err := db.Order("create_time DESC, id DESC").Find(&instances).Error; err != nil {
		return nil, err
	}
	if instances == nil {
		instances = []WorkflowInstance{}
	}
	return instances, nil
}

func (e *Engine) DetailInstance(instanceID types.ID, s *session.Session) (*InstanceDetail, error) {
	inst, steps, err := loadInstance(e.ds.GormDB(s.Context), instanceID, false)
	if err != nil {
		return nil, err
	}
	return &InstanceDetail{WorkflowInstance: *inst, Steps: steps}, nil
}

// ListStepInstances returns the steps of an instance in ascending order index.
func (e *Engine) ListStepInstances(instanceID types.ID, s *session.Session) ([]StepInstance, error) {
	_, steps, err := loadInstance(e.ds.GormDB(s.Context), instanceID, false)
	return steps, err
}

// CurrentSteps returns the steps in progress.
func (e *Engine) CurrentSteps(instanceID types.ID, s *session.Session) ([]StepInstance, error) {
	steps, err := e.ListStepInstances(instanceID, s)
	if err != nil {
		return nil, err
	}
	current := []StepInstance{}
	for _, step := range steps {
		if step.Status == state.StepInProgress.Name {
			current = append(current, step)
		}
	}
	return current, nil
}

func (e *Engine) Statistics(instanceID types.ID, s *session.Session) (*InstanceStatistics, error) {
	steps, err := e.ListStepInstances(instanceID, s)
	if err != nil {
		return nil, err
	}
	return summarize(steps), nil
}

func summarize(steps []StepInstance) *InstanceStatistics {
	r := &InstanceStatistics{Total: len(steps)}
	for _, step := range steps {
		switch step.Status {
		case state.StepPending.Name:
			r.Pending++
		case state.StepInProgress.Name:
			r.InProgress++
		case state.StepCompleted.Name:
			r.Completed++
		case state.StepSkipped.Name:
			r.Skipped++
		case state.StepFailed.Name:
			r.Failed++
		}
	}
	if r.Total > 0 {
		r.CompletionPercentage = float64(r.Completed+r.Skipped) * 100 / float64(r.Total)
	}
	return r
}

// MyTasks returns the in-progress steps assigned to the caller within active instances.
func (e *Engine) MyTasks(s *session.Session) ([]Task, error) {
	var tasks []Task
	err := e.ds.GormDB(s.Context).Table("step_instances").
		Select("step_instances.*, workflow_instances.name AS instance_name, workflow_instances.case_number AS case_number").
		Joins("JOIN workflow_instances ON workflow_instances.id = step_instances.instance_id").
		Where("step_instances.assignee_id = ? AND step_instances.status = ? AND workflow_instances.status = ?",
			s.Identity.ID, state.StepInProgress.Name, state.InstanceActive.Name).
		Order("step_instances.start_time ASC, step_instances.id ASC").
		Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

func (e *Engine) ListInstanceEvents(instanceID types.ID, s *session.Session) ([]event.EventRecord, error) {
	db := e.ds.GormDB(s.Context)
	if _, _, err := loadInstance(db, instanceID, false); err != nil {
		return nil, err
	}
	return event.ListEvents(event.SourceTypeInstance, instanceID, db)
}

// LoadInstancesPage returns instance details ordered by id, pages start at 1.
func (e *Engine) LoadInstancesPage(page, pageSize int, s *session.Session) ([]InstanceDetail, error) {
	db := e.ds.GormDB(s.Context)
	var instances []WorkflowInstance
	if err := db.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&instances).Error; err != nil {
		return nil, err
	}
	details := make([]InstanceDetail, 0, len(instances))
	for _, inst := range instances {
		var steps []StepInstance
		if err := db.Where("instance_id = ?", inst.ID).Order("order_index ASC").Find(&steps).Error; err != nil {
			return nil, err
		}
		if steps == nil {
			steps = []StepInstance{}
		}
		details = append(details, InstanceDetail{WorkflowInstance: inst, Steps: steps})
	}
	return details, nil
}
