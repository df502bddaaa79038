package sequence_test

import (
	"casework/bizerror"
	"casework/domain/sequence"
	"casework/session"
	"casework/testinfra"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

type fakeCaseNumberService struct {
	previewFunc    func(prefix string, year int) (*sequence.Preview, error)
	issueFunc      func(req sequence.CaseNumberCreation, s *session.Session) (*sequence.CaseNumber, error)
	statisticsFunc func(year int) ([]sequence.PrefixStatistics, error)
	searchFunc     func(term string) ([]sequence.CaseNumber, error)
}

func (f *fakeCaseNumberService) CurrentYear() int { return 2025 }
func (f *fakeCaseNumberService) PreviewNext(ctx context.Context, prefix string, year int) (*sequence.Preview, error) {
	return f.previewFunc(prefix, year)
}
func (f *fakeCaseNumberService) IssueCaseNumber(ctx context.Context, req sequence.CaseNumberCreation, s *session.Session) (*sequence.CaseNumber, error) {
	return f.issueFunc(req, s)
}
func (f *fakeCaseNumberService) Statistics(ctx context.Context, year int) ([]sequence.PrefixStatistics, error) {
	return f.statisticsFunc(year)
}
func (f *fakeCaseNumberService) SearchCaseNumbers(ctx context.Context, term string) ([]sequence.CaseNumber, error) {
	return f.searchFunc(term)
}

func caseNumbersRouter(svc sequence.CaseNumberService) *gin.Engine {
	router := gin.New()
	router.Use(bizerror.ErrorHandling())
	router.Use(func(c *gin.Context) {
		session.InjectSessionIntoGinContext(c, &session.Session{Identity: session.Identity{ID: 10, Name: "clerk"}})
	})
	sequence.RegisterCaseNumbersRestAPI(router, svc)
	return router
}

func TestPreviewAPI(t *testing.T) {
	RegisterTestingT(t)

	svc := &fakeCaseNumberService{}
	router := caseNumbersRouter(svc)

	t.Run("should validate query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/preview", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"prefix is required","data":null}`))

		req = httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/preview?prefix=BES&year=abc", nil)
		status, body, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid year 'abc'","data":null}`))
	})

	t.Run("should default to the current year", func(t *testing.T) {
		var capturedYear int
		svc.previewFunc = func(prefix string, year int) (*sequence.Preview, error) {
			capturedYear = year
			return &sequence.Preview{Prefix: prefix, Year: year, Number: 7, Value: sequence.Format(prefix, year, 7)}, nil
		}
		req := httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/preview?prefix=BES", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(capturedYear).To(Equal(2025))
		Expect(body).To(MatchJSON(`{"prefix":"BES","year":2025,"number":7,"value":"BES-2025-0007"}`))

		req = httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/preview?prefix=BES&year=2024", nil)
		status, _, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(capturedYear).To(Equal(2024))
	})

	t.Run("should translate concurrency errors", func(t *testing.T) {
		svc.previewFunc = func(prefix string, year int) (*sequence.Preview, error) {
			return nil, &bizerror.ConcurrencyError{Cause: errors.New("deadlock")}
		}
		req := httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/preview?prefix=BES", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body).To(MatchJSON(`{"code":"common.concurrent_modification","message":"concurrent modification: deadlock","data":null}`))
	})
}

func TestIssueCaseNumberAPI(t *testing.T) {
	RegisterTestingT(t)

	svc := &fakeCaseNumberService{}
	router := caseNumbersRouter(svc)

	t.Run("should validate body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, sequence.PathCaseNumbers, strings.NewReader(`{}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param",
			"message":"Key: 'CaseNumberCreation.Prefix' Error:Field validation for 'Prefix' failed on the 'required' tag",
			"data":null}`))
	})

	t.Run("should issue case number", func(t *testing.T) {
		createTime := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		var captured *session.Session
		svc.issueFunc = func(req sequence.CaseNumberCreation, s *session.Session) (*sequence.CaseNumber, error) {
			captured = s
			return &sequence.CaseNumber{ID: 100, Prefix: req.Prefix, Year: 2025, Number: 1, Value: "ALL-2025-0001",
				Category: sequence.CategoryGeneral, Description: req.Description, CreatorId: s.Identity.ID,
				CreatorName: s.Identity.Name, CreateTime: createTime}, nil
		}
		req := httptest.NewRequest(http.MethodPost, sequence.PathCaseNumbers, strings.NewReader(`{"prefix":"ALL","description":"misc"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(captured.Identity.Name).To(Equal("clerk"))
		Expect(body).To(MatchJSON(`{"id":"100","prefix":"ALL","year":2025,"number":1,"value":"ALL-2025-0001",
			"category":"general","description":"misc","creatorId":"10","creatorName":"clerk","createTime":"2025-03-01T09:00:00Z"}`))
	})
}

func TestCaseNumberQueriesAPI(t *testing.T) {
	RegisterTestingT(t)

	svc := &fakeCaseNumberService{}
	router := caseNumbersRouter(svc)

	t.Run("should search by term", func(t *testing.T) {
		var captured string
		svc.searchFunc = func(term string) ([]sequence.CaseNumber, error) {
			captured = term
			return []sequence.CaseNumber{}, nil
		}
		req := httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"?q=BES-2025", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`[]`))
		Expect(captured).To(Equal("BES-2025"))
	})

	t.Run("should report statistics", func(t *testing.T) {
		svc.statisticsFunc = func(year int) ([]sequence.PrefixStatistics, error) {
			return []sequence.PrefixStatistics{{Prefix: "BES", Category: sequence.CategoryAppointment, Year: year,
				Issued: 2, LastNumber: 2, Next: "BES-2023-0003"}}, nil
		}
		req := httptest.NewRequest(http.MethodGet, sequence.PathCaseNumbers+"/statistics?year=2023", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`[{"prefix":"BES","category":"appointment","year":2023,"issued":2,"lastNumber":2,"next":"BES-2023-0003"}]`))
	})
}
