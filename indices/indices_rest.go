package indices

import (
	"casework/bizerror"
	"casework/session"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	PathIndexRequests  = "/v1/index-requests"
	PathSearchInstance = "/v1/search/instances"
)

type SyncScheduler interface {
	ScheduleNewSyncRun(s *session.Session) (bool, error)
}

func RegisterIndicesRestAPI(r *gin.Engine, scheduler SyncScheduler, middleWares ...gin.HandlerFunc) {
	r.POST(PathIndexRequests, append(middleWares, func(c *gin.Context) {
		success, err := scheduler.ScheduleNewSyncRun(session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, gin.H{"result": success})
	})...)

	r.GET(PathSearchInstance, append(middleWares, handleSearchInstances)...)
}

func handleSearchInstances(c *gin.Context) {
	q := SearchQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	r, err := SearchInstancesFunc(q, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, r)
}
