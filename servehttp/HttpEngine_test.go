package servehttp

import (
	"casework/bizerror"
	"casework/testinfra"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine("casework")
	engine.GET("/forbidden", func(c *gin.Context) {
		panic(bizerror.ErrForbidden)
	})

	status, body, _ := testinfra.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/", nil), engine)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "casework", body)

	status, body, _ = testinfra.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/forbidden", nil), engine)
	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, `{"code":"security.forbidden","message":"access forbidden","data":null}`, body)
}

func TestAddr(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	assert.Equal(t, ":8080", Addr())

	t.Setenv("HTTP_ADDR", "127.0.0.1:9090")
	assert.Equal(t, "127.0.0.1:9090", Addr())
}
