package flow

import (
	"casework/bizerror"
	"casework/session"
	"net/http"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	PathTemplates = "/v1/templates"
)

type TemplateService interface {
	QueryTemplates(query *TemplateQuery, s *session.Session) ([]Template, error)
	DetailTemplate(id types.ID, s *session.Session) (*TemplateDetail, error)
	CreateTemplate(c *TemplateCreation, s *session.Session) (*TemplateDetail, error)
	UpdateTemplateBase(id types.ID, c *TemplateBaseUpdation, s *session.Session) (*Template, error)
	CreateStepDefinition(templateID types.ID, c *StepDefinitionCreation, s *session.Session) (*StepDefinition, error)
	CreateStepTransition(templateID types.ID, c *StepTransitionCreation, s *session.Session) (*StepTransition, error)
	DeleteStepTransition(templateID, transitionID types.ID, s *session.Session) error
}

type templatePath struct {
	TemplateID   types.ID `uri:"id" validate:"required"`
	TransitionID types.ID `uri:"transitionId"`
}

func RegisterTemplatesRestAPI(r *gin.Engine, svc TemplateService, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathTemplates, middleWares...)

	h := &templateHandler{svc: svc, validator: validator.New()}

	g.POST("", h.handleCreateTemplate)
	g.GET("", h.handleQueryTemplates)
	g.GET(":id", h.handleDetailTemplate)
	g.PUT(":id", h.handleUpdateTemplateBase)
	g.POST(":id/steps", h.handleCreateStepDefinition)
	g.POST(":id/transitions", h.handleCreateStepTransition)
	g.DELETE(":id/transitions/:transitionId", h.handleDeleteStepTransition)
}

type templateHandler struct {
	svc       TemplateService
	validator *validator.Validate
}

func (h *templateHandler) bindPath(c *gin.Context) templatePath {
	p := templatePath{}
	if err := c.ShouldBindUri(&p); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(p); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return p
}

func (h *templateHandler) handleQueryTemplates(c *gin.Context) {
	query := TemplateQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.QueryTemplates(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *templateHandler) handleDetailTemplate(c *gin.Context) {
	p := h.bindPath(c)
	r, err := h.svc.DetailTemplate(p.TemplateID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *templateHandler) handleCreateTemplate(c *gin.Context) {
	creation := TemplateCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.CreateTemplate(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, r)
}

func (h *templateHandler) handleUpdateTemplateBase(c *gin.Context) {
	p := h.bindPath(c)
	updation := TemplateBaseUpdation{}
	if err := c.ShouldBindBodyWith(&updation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.UpdateTemplateBase(p.TemplateID, &updation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *templateHandler) handleCreateStepDefinition(c *gin.Context) {
	p := h.bindPath(c)
	creation := StepDefinitionCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.CreateStepDefinition(p.TemplateID, &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, r)
}

func (h *templateHandler) handleCreateStepTransition(c *gin.Context) {
	p := h.bindPath(c)
	creation := StepTransitionCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.CreateStepTransition(p.TemplateID, &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, r)
}

func (h *templateHandler) handleDeleteStepTransition(c *gin.Context) {
	p := h.bindPath(c)
	if err := h.svc.DeleteStepTransition(p.TemplateID, p.TransitionID, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}
