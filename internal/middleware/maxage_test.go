package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowio/ltq/internal/domain"
	"github.com/taskflowio/ltq/internal/middleware"
)

func TestMaxAge_RejectsStaleMessage(t *testing.T) {
	mw := middleware.MaxAge{Max: time.Minute}
	m := domain.NewMessage("t", nil, nil, time.Now().Add(-2*time.Minute))

	called := false
	err := mw.Handle(context.Background(), m, func(ctx context.Context, m *domain.Message) error {
		called = true
		return nil
	})

	var reject *domain.Reject
	require.ErrorAs(t, err, &reject)
	assert.False(t, called)
}

func TestMaxAge_AllowsFreshMessage(t *testing.T) {
	mw := middleware.MaxAge{Max: time.Hour}
	m := domain.NewMessage("t", nil, nil, time.Now())

	called := false
	err := mw.Handle(context.Background(), m, func(ctx context.Context, m *domain.Message) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}
