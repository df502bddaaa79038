package flow

import (
	"sort"
	"time"

	"github.com/fundwit/go-commons/types"
)

type Template struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	Name        string   `json:"name" gorm:"unique_index:uk_templates_name" sql:"type:VARCHAR(128) NOT NULL"`
	Description string   `json:"description" sql:"type:TEXT"`
	Active      bool     `json:"active"`
	ShortCode   string   `json:"shortCode" sql:"type:VARCHAR(16)"`
	// Version grows with every change of the template, its steps or its transitions.
	Version int `json:"version" sql:"type:INT NOT NULL DEFAULT 1"`

	CreatorId   types.ID  `json:"creatorId"`
	CreatorName string    `json:"creatorName"`
	CreateTime  time.Time `json:"createTime"`
}

func (t *Template) TableName() string {
	return "templates"
}

type StepDefinition struct {
	ID            types.ID `json:"id" gorm:"primary_key"`
	TemplateID    types.ID `json:"templateId" gorm:"unique_index:uk_step_definitions_order"`
	OrderIndex    int      `json:"orderIndex" gorm:"unique_index:uk_step_definitions_order"`
	Name          string   `json:"name" sql:"type:VARCHAR(255) NOT NULL"`
	Description   string   `json:"description" sql:"type:TEXT"`
	Optional      bool     `json:"optional"`
	DefaultRole   string   `json:"defaultRole"`
	EstimatedDays int      `json:"estimatedDays"`

	CreateTime time.Time `json:"createTime"`
}

func (s *StepDefinition) TableName() string {
	return "step_definitions"
}

type StepTransition struct {
	ID         types.ID `json:"id" gorm:"primary_key"`
	TemplateID types.ID `json:"templateId"`
	FromStepID types.ID `json:"fromStepId" gorm:"unique_index:uk_step_transitions_pair"`
	ToStepID   types.ID `json:"toStepId" gorm:"unique_index:uk_step_transitions_pair"`
	Guard      string   `json:"guard"`

	CreateTime time.Time `json:"createTime"`
}

func (t *StepTransition) TableName() string {
	return "step_transitions"
}

// TemplateDetail is a template with its steps ordered by order index and its transition graph.
type TemplateDetail struct {
	Template
	Steps       []StepDefinition `json:"steps"`
	Transitions []StepTransition `json:"transitions"`
}

func (d *TemplateDetail) FindStep(stepID types.ID) (*StepDefinition, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

func (d *TemplateDetail) FindStepByOrder(orderIndex int) (*StepDefinition, bool) {
	for i := range d.Steps {
		if d.Steps[i].OrderIndex == orderIndex {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// Outgoing returns the edges leaving stepID.
func (d *TemplateDetail) Outgoing(stepID types.ID) []StepTransition {
	r := []StepTransition{}
	for _, t := range d.Transitions {
		if t.FromStepID == stepID {
			r = append(r, t)
		}
	}
	return r
}

func (d *TemplateDetail) clone() *TemplateDetail {
	c := &TemplateDetail{Template: d.Template}
	c.Steps = append([]StepDefinition{}, d.Steps...)
	c.Transitions = append([]StepTransition{}, d.Transitions...)
	return c
}

func sortSteps(steps []StepDefinition) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
}

type TemplateCreation struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description"`
	ShortCode   string `json:"shortCode" binding:"max=16"`
	Active      bool   `json:"active"`

	Steps       []StepDefinitionCreation `json:"steps" binding:"dive"`
	Transitions []OrderTransition        `json:"transitions" binding:"dive"`
}

type StepDefinitionCreation struct {
	OrderIndex    int    `json:"orderIndex" yaml:"order" binding:"required,min=1"`
	Name          string `json:"name" yaml:"name" binding:"required,max=255"`
	Description   string `json:"description" yaml:"description"`
	Optional      bool   `json:"optional" yaml:"optional"`
	DefaultRole   string `json:"defaultRole" yaml:"role"`
	EstimatedDays int    `json:"estimatedDays" yaml:"estimatedDays" binding:"min=0"`
}

// OrderTransition addresses an edge by the order indices of its steps, used before step ids exist.
type OrderTransition struct {
	FromOrder int    `json:"fromOrder" yaml:"from" binding:"required,min=1"`
	ToOrder   int    `json:"toOrder" yaml:"to" binding:"required,min=1"`
	Guard     string `json:"guard" yaml:"guard"`
}

type StepTransitionCreation struct {
	FromStepID types.ID `json:"fromStepId" binding:"required"`
	ToStepID   types.ID `json:"toStepId" binding:"required"`
	Guard      string   `json:"guard"`
}

type TemplateBaseUpdation struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description"`
	ShortCode   string `json:"shortCode" binding:"max=16"`
	Active      bool   `json:"active"`
}

type TemplateQuery struct {
	Name       string `form:"name"`
	ActiveOnly bool   `form:"activeOnly"`
}
