package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	v1 "github.com/cas-pilex/edithAI-sub000/internal/transport/http/v1"
)

func TestNewServerLogsRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewServer(v1.Deps{
		Logger: zap.New(core),
		WebSocket: func(c echo.Context) error {
			panic("socket handler exploded")
		},
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/approvals", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/ws", nil))
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)

	entries := logs.FilterMessage("request").All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "/health", entries[0].ContextMap()["uri"])
}
