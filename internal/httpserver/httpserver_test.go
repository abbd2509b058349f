package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
	"github.com/taskflowio/ltq/internal/httpserver"
)

func TestHealthz(t *testing.T) {
	srv := &httpserver.Server{Broker: broker.NewMemory()}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueSize(t *testing.T) {
	mem := broker.NewMemory()
	ctx := context.Background()
	m := domain.NewMessage("demo", nil, nil, time.Now())
	require.NoError(t, mem.Publish(ctx, m, 0))

	srv := &httpserver.Server{Broker: mem}
	req := httptest.NewRequest(http.MethodGet, "/queues/demo/size", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"size":1`)
}

func TestQueueSize_MissingTask(t *testing.T) {
	srv := &httpserver.Server{Broker: broker.NewMemory()}
	req := httptest.NewRequest(http.MethodGet, "/queues//size", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
