package process

import (
	"casework/event"
	"casework/idgen"
	"casework/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

type CommentTraits interface {
	AddComment(instanceID types.ID, c *CommentCreation, s *session.Session) (*Comment, error)
	ListComments(instanceID, stepID types.ID, s *session.Session) ([]Comment, error)
}

// AddComment attaches a note to an instance, optionally to one of its steps. Comments are
// accepted in every instance state.
func (e *Engine) AddComment(instanceID types.ID, c *CommentCreation, s *session.Session) (*Comment, error) {
	comment := Comment{
		ID:             idgen.NextID(e.idWorker),
		InstanceID:     instanceID,
		StepInstanceID: c.StepInstanceID,
		AuthorId:       s.Identity.ID,
		AuthorName:     s.Identity.Name,
		Text:           c.Text,
		CreateTime:     e.now(),
	}
	var ev *event.EventRecord
	err := e.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		inst, steps, err := loadInstance(tx, instanceID, false)
		if err != nil {
			return err
		}
		desc := ""
		if c.StepInstanceID != 0 {
			step := findStep(steps, c.StepInstanceID)
			if step == nil {
				return e.stepNotInInstance(tx, c.StepInstanceID)
			}
			desc = step.Name
		}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		ev, err = event.CreateEvent(event.SourceTypeInstance, inst.ID, inst.Name, event.EventCategoryCommented,
			[]event.UpdatedProperty{{PropertyName: "Comment", PropertyDesc: desc, NewValue: comment.Text}},
			&s.Identity, comment.CreateTime, tx)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	e.handlers.Dispatch(ev)
	return &comment, nil
}

// ListComments returns the comments of an instance in creation order, restricted to one step
// when stepID is set.
func (e *Engine) ListComments(instanceID, stepID types.ID, s *session.Session) ([]Comment, error) {
	db := e.ds.GormDB(s.Context)
	if _, _, err := loadInstance(db, instanceID, false); err != nil {
		return nil, err
	}
	q := db.Where("instance_id = ?", instanceID)
	if stepID != 0 {
		q = q.Where("step_instance_id = ?", stepID)
	}
	var comments []Comment
	if err := q.Order("create_time ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []Comment{}
	}
	return comments, nil
}
