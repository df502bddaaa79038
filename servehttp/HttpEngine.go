package servehttp

import (
	"casework/bizerror"
	"casework/infra/tracing"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 3 * time.Second
)

// NewEngine builds the gin engine with tracing and error rendering, plus a health route.
func NewEngine(serviceName string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.LoggerWithWriter(logrus.StandardLogger().Writer()), gin.Recovery())
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, serviceName)
	})
	return engine
}

// Addr HTTP_ADDR, defaults to :8080.
func Addr() string {
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		return addr
	}
	return defaultAddr
}

// StartHTTPServer serves engine until SIGINT or SIGTERM, then shuts down gracefully.
func StartHTTPServer(engine *gin.Engine) {
	srv := &http.Server{
		Addr:    Addr(),
		Handler: engine,
	}

	go func() {
		logrus.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 send syscall.SIGINT
	// kill -9 send syscall.SIGKILL, can't be caught
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("[QUIT] shutdown signal has been received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("[QUIT] http server shutdown failed: %v", err)
		return
	}
	logrus.Info("[QUIT] http server is shutdown gracefully, new request will be rejected")
}
