package process

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type WorkflowInstance struct {
	ID           types.ID `json:"id" gorm:"primary_key"`
	TemplateID   types.ID `json:"templateId" gorm:"index:idx_workflow_instances_template"`
	TemplateName string   `json:"templateName"`
	Name         string   `json:"name" sql:"type:VARCHAR(255) NOT NULL"`
	Status       string   `json:"status" gorm:"index:idx_workflow_instances_status" sql:"type:VARCHAR(16) NOT NULL"`

	CreatorId   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`
	SubjectId   types.ID `json:"subjectId"`

	CaseNumberId types.ID `json:"caseNumberId"`
	CaseNumber   string   `json:"caseNumber" sql:"type:VARCHAR(64)"`

	DueDate *time.Time `json:"dueDate"`
	Notes   string     `json:"notes" sql:"type:TEXT"`

	CreateTime   time.Time  `json:"createTime"`
	StartTime    *time.Time `json:"startTime"`
	CompleteTime *time.Time `json:"completeTime"`
}

func (i *WorkflowInstance) TableName() string {
	return "workflow_instances"
}

// StepInstance is the runtime state of one step definition within an instance. Order, name,
// optional flag and role are copied from the definition when the instance starts.
type StepInstance struct {
	ID               types.ID `json:"id" gorm:"primary_key"`
	InstanceID       types.ID `json:"instanceId" gorm:"unique_index:uk_step_instances_definition"`
	StepDefinitionID types.ID `json:"stepDefinitionId" gorm:"unique_index:uk_step_instances_definition"`

	OrderIndex  int    `json:"orderIndex"`
	Name        string `json:"name"`
	Optional    bool   `json:"optional"`
	DefaultRole string `json:"defaultRole"`

	Status       string   `json:"status" sql:"type:VARCHAR(16) NOT NULL"`
	AssigneeId   types.ID `json:"assigneeId" gorm:"index:idx_step_instances_assignee"`
	AssigneeName string   `json:"assigneeName"`

	StartTime    *time.Time `json:"startTime"`
	CompleteTime *time.Time `json:"completeTime"`
	Notes        string     `json:"notes" sql:"type:TEXT"`
}

func (s *StepInstance) TableName() string {
	return "step_instances"
}

type Comment struct {
	ID             types.ID `json:"id" gorm:"primary_key"`
	InstanceID     types.ID `json:"instanceId" gorm:"index:idx_workflow_comments_instance"`
	StepInstanceID types.ID `json:"stepInstanceId"`

	AuthorId   types.ID  `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text" sql:"type:TEXT"`
	CreateTime time.Time `json:"createTime"`
}

func (c *Comment) TableName() string {
	return "workflow_comments"
}

type InstanceDetail struct {
	WorkflowInstance
	Steps []StepInstance `json:"steps"`
}

type InstanceStatistics struct {
	Total                int     `json:"total"`
	Pending              int     `json:"pending"`
	InProgress           int     `json:"inProgress"`
	Completed            int     `json:"completed"`
	Skipped              int     `json:"skipped"`
	Failed               int     `json:"failed"`
	CompletionPercentage float64 `json:"completionPercentage"`
}

type Task struct {
	StepInstance
	InstanceName string `json:"instanceName"`
	CaseNumber   string `json:"caseNumber"`
}

type InstanceCreation struct {
	TemplateID     types.ID   `json:"templateId" binding:"required"`
	Name           string     `json:"name" binding:"required,max=255"`
	SubjectID      types.ID   `json:"subjectId"`
	WithCaseNumber bool       `json:"withCaseNumber"`
	DueDate        *time.Time `json:"dueDate"`
	Notes          string     `json:"notes"`
}

type InstanceQuery struct {
	Status     string   `form:"status" binding:"omitempty,oneof=draft active completed aborted"`
	TemplateID types.ID `form:"templateId"`
	Term       string   `form:"q"`
}

type StepCompletion struct {
	Notes string `json:"notes"`
}

type StepSkip struct {
	Reason string `json:"reason" binding:"required"`
}

type StepFailure struct {
	Description string `json:"description" binding:"required"`
}

type InstanceAbortion struct {
	Reason string `json:"reason" binding:"required"`
}

type StepAssignment struct {
	AssigneeID   types.ID `json:"assigneeId" binding:"required"`
	AssigneeName string   `json:"assigneeName"`
}

type CommentCreation struct {
	Text           string   `json:"text" binding:"required"`
	StepInstanceID types.ID `json:"stepInstanceId"`
}
