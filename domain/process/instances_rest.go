package process

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
	PathInstances = "/v1/instances"
	PathTasks     = "/v1/tasks"
)

type InstanceService interface {
	EngineTraits
	QueryTraits
	CommentTraits
}

type instancePath struct {
	InstanceID types.ID `uri:"id" validate:"required"`
	StepID     types.ID `uri:"stepId"`
}

type commentQuery struct {
	StepID types.ID `form:"stepId"`
}

func RegisterInstancesRestAPI(r *gin.Engine, svc InstanceService, middleWares ...gin.HandlerFunc) {
	h := &instanceHandler{svc: svc, validator: validator.New()}

	g := r.Group(PathInstances, middleWares...)
	g.POST("", h.handleCreateInstance)
	g.GET("", h.handleQueryInstances)
	g.GET(":id", h.handleDetailInstance)
	g.POST(":id/start", h.handleStart)
	g.POST(":id/abort", h.handleAbort)
	g.GET(":id/steps", h.handleListSteps)
	g.GET(":id/current-steps", h.handleCurrentSteps)
	g.GET(":id/statistics", h.handleStatistics)
	g.GET(":id/completion", h.handleCheckCompletion)
	g.GET(":id/events", h.handleListEvents)
	g.GET(":id/steps/:stepId/next", h.handleResolveNext)
	g.POST(":id/steps/:stepId/complete", h.handleCompleteStep)
	g.POST(":id/steps/:stepId/skip", h.handleSkipStep)
	g.POST(":id/steps/:stepId/fail", h.handleFailStep)
	g.POST(":id/steps/:stepId/retry", h.handleRetryStep)
	g.PUT(":id/steps/:stepId/assignee", h.handleAssignStep)
	g.GET(":id/comments", h.handleListComments)
	g.POST(":id/comments", h.handleAddComment)

	r.GET(PathTasks, append(middleWares, h.handleMyTasks)...)
}

type instanceHandler struct {
	svc       InstanceService
	validator *validator.Validate
}

func (h *instanceHandler) bindPath(c *gin.Context, withStep bool) instancePath {
	p := instancePath{}
	if err := c.ShouldBindUri(&p); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(p); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if withStep {
		if err := h.validator.Var(p.StepID, "required"); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}
	return p
}

func bindBody(c *gin.Context, obj interface{}) {
	if err := c.ShouldBindBodyWith(obj, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
}

func respond(c *gin.Context, status int, r interface{}, err error) {
	if err != nil {
		panic(err)
	}
	c.JSON(status, r)
}

func (h *instanceHandler) handleCreateInstance(c *gin.Context) {
	creation := InstanceCreation{}
	bindBody(c, &creation)
	r, err := h.svc.CreateInstance(&creation, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusCreated, r, err)
}

func (h *instanceHandler) handleQueryInstances(c *gin.Context) {
	query := InstanceQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.QueryInstances(&query, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleDetailInstance(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.DetailInstance(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleStart(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.Start(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleAbort(c *gin.Context) {
	p := h.bindPath(c, false)
	abortion := InstanceAbortion{}
	bindBody(c, &abortion)
	r, err := h.svc.Abort(p.InstanceID, abortion.Reason, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleListSteps(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.ListStepInstances(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleCurrentSteps(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.CurrentSteps(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleStatistics(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.Statistics(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleCheckCompletion(c *gin.Context) {
	p := h.bindPath(c, false)
	done, err := h.svc.CheckCompletion(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, gin.H{"completed": done}, err)
}

func (h *instanceHandler) handleListEvents(c *gin.Context) {
	p := h.bindPath(c, false)
	r, err := h.svc.ListInstanceEvents(p.InstanceID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleResolveNext(c *gin.Context) {
	p := h.bindPath(c, true)
	next, err := h.svc.ResolveNext(p.InstanceID, p.StepID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	if next == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, next)
}

func (h *instanceHandler) handleCompleteStep(c *gin.Context) {
	p := h.bindPath(c, true)
	completion := StepCompletion{}
	if c.Request.ContentLength != 0 {
		bindBody(c, &completion)
	}
	r, err := h.svc.CompleteStep(p.InstanceID, p.StepID, completion.Notes, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleSkipStep(c *gin.Context) {
	p := h.bindPath(c, true)
	skip := StepSkip{}
	bindBody(c, &skip)
	r, err := h.svc.SkipStep(p.InstanceID, p.StepID, skip.Reason, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleFailStep(c *gin.Context) {
	p := h.bindPath(c, true)
	failure := StepFailure{}
	bindBody(c, &failure)
	r, err := h.svc.FailStep(p.InstanceID, p.StepID, failure.Description, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleRetryStep(c *gin.Context) {
	p := h.bindPath(c, true)
	r, err := h.svc.RetryStep(p.InstanceID, p.StepID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleAssignStep(c *gin.Context) {
	p := h.bindPath(c, true)
	assignment := StepAssignment{}
	bindBody(c, &assignment)
	r, err := h.svc.AssignStep(p.InstanceID, p.StepID, &assignment, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleListComments(c *gin.Context) {
	p := h.bindPath(c, false)
	q := commentQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := h.svc.ListComments(p.InstanceID, q.StepID, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}

func (h *instanceHandler) handleAddComment(c *gin.Context) {
	p := h.bindPath(c, false)
	creation := CommentCreation{}
	bindBody(c, &creation)
	r, err := h.svc.AddComment(p.InstanceID, &creation, session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusCreated, r, err)
}

func (h *instanceHandler) handleMyTasks(c *gin.Context) {
	r, err := h.svc.MyTasks(session.ExtractSessionFromGinContext(c))
	respond(c, http.StatusOK, r, err)
}
