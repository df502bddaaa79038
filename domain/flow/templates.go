package flow

import (
	"casework/bizerror"
	"casework/event"
	"casework/idgen"
	"casework/persistence"
	"casework/session"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

const (
	detailCacheExpiration = 10 * time.Minute
	resourceTemplate      = "template"
	resourceTransition    = "step transition"
)

// ShortCodeChecker reports whether code may serve as the case-number prefix of a template.
type ShortCodeChecker func(code string) bool

// Registry stores templates. Reads accept the caller's transaction, writes require the admin role.
type Registry struct {
	ds       *persistence.DataSourceManager
	details  *cache.Cache
	// committed holds the latest template versions written by this registry
	committed     map[types.ID]int
	committedLock sync.Mutex
	idWorker *sonyflake.Sonyflake
	handlers *event.HandlerTable

	shortCodes ShortCodeChecker
	now        func() time.Time
}

func NewRegistry(ds *persistence.DataSourceManager, shortCodes ShortCodeChecker, handlers *event.HandlerTable) *Registry {
	return &Registry{
		ds:         ds,
		details:    cache.New(detailCacheExpiration, time.Minute),
		committed:  map[types.ID]int{},
		idWorker:   idgen.NewWorker(),
		handlers:   handlers,
		shortCodes: shortCodes,
		now:        func() time.Time { return time.Now().Round(time.Millisecond) },
	}
}

func (r *Registry) GetTemplate(tx *gorm.DB, id types.ID) (*Template, error) {
	if id == 0 {
		return nil, bizerror.NewNotFoundError(resourceTemplate, id)
	}
	t := Template{}
	if err := tx.Where(&Template{ID: id}).First(&t).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bizerror.NewNotFoundError(resourceTemplate, id)
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListSteps returns the steps of a template in ascending order index.
func (r *Registry) ListSteps(tx *gorm.DB, templateID types.ID) ([]StepDefinition, error) {
	var steps []StepDefinition
	if err := tx.Where(&StepDefinition{TemplateID: templateID}).Order("order_index ASC").Find(&steps).Error; err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []StepDefinition{}
	}
	return steps, nil
}

func (r *Registry) GetOutgoingTransitions(tx *gorm.DB, stepID types.ID) ([]StepTransition, error) {
	var transitions []StepTransition
	if err := tx.Where(&StepTransition{FromStepID: stepID}).Order("id ASC").Find(&transitions).Error; err != nil {
		return nil, err
	}
	if transitions == nil {
		transitions = []StepTransition{}
	}
	return transitions, nil
}

// LoadDetail returns the template with steps and transitions, served from cache when possible.
// The returned value is a private copy.
func (r *Registry) LoadDetail(tx *gorm.DB, id types.ID) (*TemplateDetail, error) {
	key := id.String()
	if cached, found := r.details.Get(key); found {
		return cached.(*TemplateDetail).clone(), nil
	}

	t, err := r.GetTemplate(tx, id)
	if err != nil {
		return nil, err
	}
	steps, err := r.ListSteps(tx, id)
	if err != nil {
		return nil, err
	}
	var transitions []StepTransition
	if err := tx.Where(&StepTransition{TemplateID: id}).Order("id ASC").Find(&transitions).Error; err != nil {
		return nil, err
	}
	if transitions == nil {
		transitions = []StepTransition{}
	}
	detail := &TemplateDetail{Template: *t, Steps: steps, Transitions: transitions}
	r.cacheDetail(detail)
	return detail.clone(), nil
}

// cacheDetail skips details older than a committed write, the reading transaction may have
// started before that write.
func (r *Registry) cacheDetail(detail *TemplateDetail) {
	r.committedLock.Lock()
	defer r.committedLock.Unlock()
	if detail.Version < r.committed[detail.ID] {
		return
	}
	r.details.Set(detail.ID.String(), detail, cache.DefaultExpiration)
}

// invalidate must be called after the transaction that wrote version committed.
func (r *Registry) invalidate(id types.ID, version int) {
	r.committedLock.Lock()
	defer r.committedLock.Unlock()
	if version > r.committed[id] {
		r.committed[id] = version
	}
	r.details.Delete(id.String())
}

// bumpVersion increments the version of template id inside tx and returns the new value.
func bumpVersion(tx *gorm.DB, id types.ID) (int, error) {
	db := tx.Model(&Template{}).Where("id = ?", id).UpdateColumn("version", gorm.Expr("version + 1"))
	if db.Error != nil {
		return 0, db.Error
	}
	if db.RowsAffected != 1 {
		return 0, bizerror.NewNotFoundError(resourceTemplate, id)
	}
	t := Template{}
	if err := tx.Select("version").Where("id = ?", id).First(&t).Error; err != nil {
		return 0, err
	}
	return t.Version, nil
}

func (r *Registry) QueryTemplates(query *TemplateQuery, s *session.Session) ([]Template, error) {
	var templates []Template
	q := r.ds.GormDB(s.Context).Model(&Template{})
	if query.Name != "" {
		q = q.Where("name LIKE ?", "%"+query.Name+"%")
	}
	if query.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []Template{}
	}
	return templates, nil
}

func (r *Registry) DetailTemplate(id types.ID, s *session.Session) (*TemplateDetail, error) {
	return r.LoadDetail(r.ds.GormDB(s.Context), id)
}

func (r *Registry) CreateTemplate(c *TemplateCreation, s *session.Session) (*TemplateDetail, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if err := r.checkShortCode(c.ShortCode); err != nil {
		return nil, err
	}
	if err := validateStepOrders(c.Steps); err != nil {
		return nil, err
	}

	now := r.now()
	detail := &TemplateDetail{
		Template: Template{
			ID:          idgen.NextID(r.idWorker),
			Name:        strings.TrimSpace(c.Name),
			Description: c.Description,
			Active:      c.Active,
			ShortCode:   c.ShortCode,
			Version:     1,
			CreatorId:   s.Identity.ID,
			CreatorName: s.Identity.Name,
			CreateTime:  now,
		},
		Steps:       []StepDefinition{},
		Transitions: []StepTransition{},
	}
	for _, sc := range c.Steps {
		detail.Steps = append(detail.Steps, r.newStepDefinition(detail.ID, sc, now))
	}
	sortSteps(detail.Steps)
	for _, tc := range c.Transitions {
		from, found := detail.FindStepByOrder(tc.FromOrder)
		if !found {
			return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "transition source %d is not a step of the template", tc.FromOrder)
		}
		to, found := detail.FindStepByOrder(tc.ToOrder)
		if !found {
			return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "transition target %d is not a step of the template", tc.ToOrder)
		}
		t, err := r.newStepTransition(detail, from.ID, to.ID, tc.Guard, now)
		if err != nil {
			return nil, err
		}
		detail.Transitions = append(detail.Transitions, *t)
	}

	var ev *event.EventRecord
	err := r.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if err := r.checkNameAvailable(tx, detail.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&detail.Template).Error; err != nil {
			return err
		}
		for i := range detail.Steps {
			if err := tx.Create(&detail.Steps[i]).Error; err != nil {
				return err
			}
		}
		for i := range detail.Transitions {
			if err := tx.Create(&detail.Transitions[i]).Error; err != nil {
				return err
			}
		}
		var err error
		ev, err = event.CreateEvent(event.SourceTypeTemplate, detail.ID, detail.Name, event.EventCategoryCreated,
			[]event.UpdatedProperty{{PropertyName: "Steps", NewValue: strconv.Itoa(len(detail.Steps))}}, &s.Identity, now, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.handlers.Dispatch(ev)
	return detail, nil
}

func (r *Registry) UpdateTemplateBase(id types.ID, c *TemplateBaseUpdation, s *session.Session) (*Template, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if err := r.checkShortCode(c.ShortCode); err != nil {
		return nil, err
	}

	var updated *Template
	var ev *event.EventRecord
	err := r.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		origin, err := r.GetTemplate(tx, id)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(c.Name)
		if err := r.checkNameAvailable(tx, name, id); err != nil {
			return err
		}
		if err := tx.Model(&Template{}).Where(&Template{ID: id}).Updates(map[string]interface{}{
			"name": name, "description": c.Description, "short_code": c.ShortCode, "active": c.Active,
			"version": gorm.Expr("version + 1"),
		}).Error; err != nil {
			return err
		}
		// query again
		if updated, err = r.GetTemplate(tx, id); err != nil {
			return err
		}

		changes := []event.UpdatedProperty{}
		if origin.Name != updated.Name {
			changes = append(changes, event.UpdatedProperty{PropertyName: "Name", OldValue: origin.Name, NewValue: updated.Name})
		}
		if origin.Active != updated.Active {
			changes = append(changes, event.UpdatedProperty{PropertyName: "Active",
				OldValue: strconv.FormatBool(origin.Active), NewValue: strconv.FormatBool(updated.Active)})
		}
		if origin.ShortCode != updated.ShortCode {
			changes = append(changes, event.UpdatedProperty{PropertyName: "ShortCode", OldValue: origin.ShortCode, NewValue: updated.ShortCode})
		}
		ev, err = event.CreateEvent(event.SourceTypeTemplate, id, updated.Name, event.EventCategoryPropertyUpdated,
			changes, &s.Identity, r.now(), tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(id, updated.Version)
	r.handlers.Dispatch(ev)
	return updated, nil
}

func (r *Registry) CreateStepDefinition(templateID types.ID, c *StepDefinitionCreation, s *session.Session) (*StepDefinition, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	if c.OrderIndex < 1 {
		return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "order index must be at least 1")
	}
	var step StepDefinition
	var version int
	err := r.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if _, err := r.GetTemplate(tx, templateID); err != nil {
			return err
		}
		var count int
		if err := tx.Model(&StepDefinition{}).Where("template_id = ? AND order_index = ?", templateID, c.OrderIndex).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "order index %d is already used", c.OrderIndex)
		}
		step = r.newStepDefinition(templateID, *c, r.now())
		if err := tx.Create(&step).Error; err != nil {
			return err
		}
		var err error
		version, err = bumpVersion(tx, templateID)
		return err
	})
	if err != nil {
		if persistence.IsDuplicateKeyError(err) {
			return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "order index %d is already used", c.OrderIndex)
		}
		return nil, err
	}
	r.invalidate(templateID, version)
	return &step, nil
}

func (r *Registry) CreateStepTransition(templateID types.ID, c *StepTransitionCreation, s *session.Session) (*StepTransition, error) {
	if !s.IsAdmin() {
		return nil, bizerror.ErrForbidden
	}
	var transition *StepTransition
	var version int
	err := r.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if _, err := r.GetTemplate(tx, templateID); err != nil {
			return err
		}
		steps, err := r.ListSteps(tx, templateID)
		if err != nil {
			return err
		}
		var transitions []StepTransition
		if err := tx.Where(&StepTransition{TemplateID: templateID}).Find(&transitions).Error; err != nil {
			return err
		}
		detail := &TemplateDetail{Steps: steps, Transitions: transitions}
		detail.ID = templateID
		if transition, err = r.newStepTransition(detail, c.FromStepID, c.ToStepID, c.Guard, r.now()); err != nil {
			return err
		}
		if err := tx.Create(transition).Error; err != nil {
			return err
		}
		version, err = bumpVersion(tx, templateID)
		return err
	})
	if err != nil {
		if persistence.IsDuplicateKeyError(err) {
			return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "transition already exists")
		}
		return nil, err
	}
	r.invalidate(templateID, version)
	return transition, nil
}

func (r *Registry) DeleteStepTransition(templateID, transitionID types.ID, s *session.Session) error {
	if !s.IsAdmin() {
		return bizerror.ErrForbidden
	}
	var version int
	err := r.ds.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		db := tx.Where("id = ? AND template_id = ?", transitionID, templateID).Delete(&StepTransition{})
		if db.Error != nil {
			return db.Error
		}
		if db.RowsAffected == 0 {
			return bizerror.NewNotFoundError(resourceTransition, transitionID)
		}
		var err error
		version, err = bumpVersion(tx, templateID)
		return err
	})
	if err != nil {
		return err
	}
	r.invalidate(templateID, version)
	return nil
}

// FindTemplateByName returns nil without error when no template carries name.
func (r *Registry) FindTemplateByName(ctx context.Context, name string) (*Template, error) {
	t := Template{}
	if err := r.ds.GormDB(ctx).Where("name = ?", name).First(&t).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Registry) newStepDefinition(templateID types.ID, c StepDefinitionCreation, now time.Time) StepDefinition {
	return StepDefinition{
		ID:            idgen.NextID(r.idWorker),
		TemplateID:    templateID,
		OrderIndex:    c.OrderIndex,
		Name:          strings.TrimSpace(c.Name),
		Description:   c.Description,
		Optional:      c.Optional,
		DefaultRole:   c.DefaultRole,
		EstimatedDays: c.EstimatedDays,
		CreateTime:    now,
	}
}

// newStepTransition validates an edge against the steps and edges already in detail.
func (r *Registry) newStepTransition(detail *TemplateDetail, fromID, toID types.ID, guard string, now time.Time) (*StepTransition, error) {
	if _, found := detail.FindStep(fromID); !found {
		return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition,
			"step %s does not belong to template %s", fromID, detail.ID)
	}
	if _, found := detail.FindStep(toID); !found {
		return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition,
			"step %s does not belong to template %s", toID, detail.ID)
	}
	if fromID == toID {
		return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "step %s cannot transit to itself", fromID)
	}
	for _, t := range detail.Transitions {
		if t.FromStepID == fromID && t.ToStepID == toID {
			return nil, bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "transition already exists")
		}
	}
	return &StepTransition{
		ID:         idgen.NextID(r.idWorker),
		TemplateID: detail.ID,
		FromStepID: fromID,
		ToStepID:   toID,
		Guard:      guard,
		CreateTime: now,
	}, nil
}

func (r *Registry) checkShortCode(code string) error {
	if code == "" || r.shortCodes == nil || r.shortCodes(code) {
		return nil
	}
	return bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "unknown short code '%s'", code)
}

func (r *Registry) checkNameAvailable(tx *gorm.DB, name string, self types.ID) error {
	var count int
	if err := tx.Model(&Template{}).Where("name = ? AND id <> ?", name, self).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logrus.WithField("name", name).Info("template name already used")
		return bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "template name '%s' already exists", name)
	}
	return nil
}

func validateStepOrders(steps []StepDefinitionCreation) error {
	seen := map[int]bool{}
	for _, s := range steps {
		if s.OrderIndex < 1 {
			return bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "order index must be at least 1")
		}
		if seen[s.OrderIndex] {
			return bizerror.NewValidationError(bizerror.ReasonInvalidDefinition, "order index %d is used twice", s.OrderIndex)
		}
		seen[s.OrderIndex] = true
	}
	return nil
}
