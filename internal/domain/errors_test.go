package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskflowio/ltq/internal/domain"
)

func TestReject_ErrorMessage(t *testing.T) {
	assert.Equal(t, "message rejected", domain.NewReject("").Error())
	assert.Equal(t, "message rejected: max tries exceeded", domain.NewReject("max tries exceeded").Error())
}

func TestRetry_ErrorMessage(t *testing.T) {
	assert.Equal(t, "message retry requested", domain.NewRetry(0, "").Error())
	assert.Equal(t, "message retry requested: rate limited", domain.NewRetry(time.Second, "rate limited").Error())
}

func TestReject_ErrorsAsThroughWrap(t *testing.T) {
	wrapped := fmt.Errorf("op failed: %w", domain.NewReject("bad input"))
	var reject *domain.Reject
	assert.True(t, errors.As(wrapped, &reject))
	assert.Equal(t, "bad input", reject.Reason)
}

func TestRetry_ErrorsAsThroughWrap(t *testing.T) {
	wrapped := fmt.Errorf("op failed: %w", domain.NewRetry(5*time.Second, "backoff"))
	var retry *domain.Retry
	assert.True(t, errors.As(wrapped, &retry))
	assert.Equal(t, 5*time.Second, retry.Delay)
}
