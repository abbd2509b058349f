package middleware_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowio/ltq/internal/domain"
	"github.com/taskflowio/ltq/internal/middleware"
)

func TestFromOptions_EmptyOptionsYieldsNoMiddleware(t *testing.T) {
	mws, err := middleware.FromOptions(domain.Options{})
	require.NoError(t, err)
	assert.Empty(t, mws)
}

func TestFromOptions_BuildsOneMiddlewarePerSetOption(t *testing.T) {
	max := 3
	age := time.Minute
	mws, err := middleware.FromOptions(domain.Options{MaxTries: &max, MaxAge: &age, MaxRate: "10/s"})
	require.NoError(t, err)
	require.Len(t, mws, 3)
	assert.IsType(t, middleware.MaxTries{}, mws[0])
	assert.IsType(t, middleware.MaxAge{}, mws[1])
	assert.IsType(t, &middleware.MaxRate{}, mws[2])
}

func TestFromOptions_PropagatesInvalidMaxRate(t *testing.T) {
	_, err := middleware.FromOptions(domain.Options{MaxRate: "garbage"})
	assert.Error(t, err)
}
