package sequence

import (
	"casework/bizerror"
	"casework/session"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathCaseNumbers = "/v1/case-numbers"
)

type CaseNumberService interface {
	CurrentYear() int
	PreviewNext(ctx context.Context, prefix string, year int) (*Preview, error)
	IssueCaseNumber(ctx context.Context, req CaseNumberCreation, s *session.Session) (*CaseNumber, error)
	Statistics(ctx context.Context, year int) ([]PrefixStatistics, error)
	SearchCaseNumbers(ctx context.Context, term string) ([]CaseNumber, error)
}

func RegisterCaseNumbersRestAPI(r *gin.Engine, svc CaseNumberService, middleWares ...gin.HandlerFunc) {
	h := &caseNumbersHandler{svc: svc}
	g := r.Group(PathCaseNumbers, middleWares...)
	g.GET("", h.handleSearchCaseNumbers)
	g.POST("", h.handleIssueCaseNumber)
	g.GET("preview", h.handlePreview)
	g.GET("statistics", h.handleStatistics)
}

type caseNumbersHandler struct {
	svc CaseNumberService
}

func (h *caseNumbersHandler) handleSearchCaseNumbers(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	r, err := h.svc.SearchCaseNumbers(s.Context, c.Query("q"))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *caseNumbersHandler) handleIssueCaseNumber(c *gin.Context) {
	req := CaseNumberCreation{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	s := session.ExtractSessionFromGinContext(c)
	r, err := h.svc.IssueCaseNumber(s.Context, req, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, r)
}

func (h *caseNumbersHandler) handlePreview(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		panic(&bizerror.ErrBadParam{Cause: errors.New("prefix is required")})
	}
	year := h.queryYear(c)
	s := session.ExtractSessionFromGinContext(c)
	r, err := h.svc.PreviewNext(s.Context, prefix, year)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *caseNumbersHandler) handleStatistics(c *gin.Context) {
	year := h.queryYear(c)
	s := session.ExtractSessionFromGinContext(c)
	r, err := h.svc.Statistics(s.Context, year)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}

func (h *caseNumbersHandler) queryYear(c *gin.Context) int {
	v := c.Query("year")
	if v == "" {
		return h.svc.CurrentYear()
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid year '" + v + "'")})
	}
	return year
}
