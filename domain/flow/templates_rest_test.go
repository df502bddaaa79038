package flow_test

import (
	"casework/bizerror"
	"casework/domain/flow"
	"casework/session"
	"casework/testinfra"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

type fakeTemplateService struct {
	flow.TemplateService

	detailFunc           func(id types.ID) (*flow.TemplateDetail, error)
	createFunc           func(c *flow.TemplateCreation) (*flow.TemplateDetail, error)
	queryFunc            func(q *flow.TemplateQuery) ([]flow.Template, error)
	deleteTransitionFunc func(templateID, transitionID types.ID) error
}

func (f *fakeTemplateService) DetailTemplate(id types.ID, s *session.Session) (*flow.TemplateDetail, error) {
	return f.detailFunc(id)
}
func (f *fakeTemplateService) CreateTemplate(c *flow.TemplateCreation, s *session.Session) (*flow.TemplateDetail, error) {
	return f.createFunc(c)
}
func (f *fakeTemplateService) QueryTemplates(q *flow.TemplateQuery, s *session.Session) ([]flow.Template, error) {
	return f.queryFunc(q)
}
func (f *fakeTemplateService) DeleteStepTransition(templateID, transitionID types.ID, s *session.Session) error {
	return f.deleteTransitionFunc(templateID, transitionID)
}

func TestTemplatesRestAPI(t *testing.T) {
	RegisterTestingT(t)

	svc := &fakeTemplateService{}
	router := gin.New()
	router.Use(bizerror.ErrorHandling())
	flow.RegisterTemplatesRestAPI(router, svc)

	t.Run("should validate path id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, flow.PathTemplates+"/abc", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))

		req = httptest.NewRequest(http.MethodGet, flow.PathTemplates+"/0", nil)
		status, _, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
	})

	t.Run("should render template detail", func(t *testing.T) {
		createTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		svc.detailFunc = func(id types.ID) (*flow.TemplateDetail, error) {
			return &flow.TemplateDetail{
				Template: flow.Template{ID: id, Name: "Appointment", Active: true, ShortCode: "BES", Version: 3, CreateTime: createTime},
				Steps: []flow.StepDefinition{{ID: 11, TemplateID: id, OrderIndex: 1, Name: "Review application",
					CreateTime: createTime}},
				Transitions: []flow.StepTransition{},
			}, nil
		}
		req := httptest.NewRequest(http.MethodGet, flow.PathTemplates+"/10", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"id":"10","name":"Appointment","description":"","active":true,"shortCode":"BES","version":3,
			"creatorId":"0","creatorName":"","createTime":"2025-01-02T03:04:05Z",
			"steps":[{"id":"11","templateId":"10","orderIndex":1,"name":"Review application","description":"",
			  "optional":false,"defaultRole":"","estimatedDays":0,"createTime":"2025-01-02T03:04:05Z"}],
			"transitions":[]}`))
	})

	t.Run("should map service errors", func(t *testing.T) {
		svc.detailFunc = func(id types.ID) (*flow.TemplateDetail, error) {
			return nil, bizerror.NewNotFoundError("template", id)
		}
		req := httptest.NewRequest(http.MethodGet, flow.PathTemplates+"/10", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(MatchJSON(`{"code":"common.record_not_found","message":"template 10 not found","data":null}`))

		svc.createFunc = func(c *flow.TemplateCreation) (*flow.TemplateDetail, error) {
			return nil, bizerror.ErrForbidden
		}
		req = httptest.NewRequest(http.MethodPost, flow.PathTemplates, strings.NewReader(`{"name":"x"}`))
		status, body, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).To(MatchJSON(`{"code":"security.forbidden","message":"access forbidden","data":null}`))
	})

	t.Run("should validate creation body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, flow.PathTemplates, strings.NewReader(`{"name":"x","steps":[{"orderIndex":0,"name":"a"}]}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param",
			"message":"Key: 'TemplateCreation.Steps[0].OrderIndex' Error:Field validation for 'OrderIndex' failed on the 'required' tag",
			"data":null}`))
	})

	t.Run("should pass query and delete transition", func(t *testing.T) {
		var captured flow.TemplateQuery
		svc.queryFunc = func(q *flow.TemplateQuery) ([]flow.Template, error) {
			captured = *q
			return []flow.Template{}, nil
		}
		req := httptest.NewRequest(http.MethodGet, flow.PathTemplates+"?name=App&activeOnly=true", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`[]`))
		Expect(captured).To(Equal(flow.TemplateQuery{Name: "App", ActiveOnly: true}))

		var ids []types.ID
		svc.deleteTransitionFunc = func(templateID, transitionID types.ID) error {
			ids = []types.ID{templateID, transitionID}
			return nil
		}
		req = httptest.NewRequest(http.MethodDelete, flow.PathTemplates+"/10/transitions/20", nil)
		status, _, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNoContent))
		Expect(ids).To(Equal([]types.ID{10, 20}))
	})
}
