package middleware

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/envproxy/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
