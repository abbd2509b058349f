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

func TestMaxRate_FirstCallWithinRatePasses(t *testing.T) {
	mw, err := middleware.NewMaxRate("10/s")
	require.NoError(t, err)
	m := domain.NewMessage("t", nil, nil, time.Now())

	called := false
	err = mw.Handle(context.Background(), m, func(ctx context.Context, m *domain.Message) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, m.RateLimited())
}

func TestMaxRate_ExceedingRateRetriesAndMarksMessage(t *testing.T) {
	mw, err := middleware.NewMaxRate("10/s")
	require.NoError(t, err)

	base := func(ctx context.Context, m *domain.Message) error { return nil }

	// Consume the single burst token.
	require.NoError(t, mw.Handle(context.Background(), domain.NewMessage("t", nil, nil, time.Now()), base))

	m := domain.NewMessage("t", nil, nil, time.Now())
	err = mw.Handle(context.Background(), m, func(ctx context.Context, m *domain.Message) error {
		t.Fatal("next must not run while rate limited")
		return nil
	})

	var retry *domain.Retry
	require.ErrorAs(t, err, &retry)
	assert.True(t, m.RateLimited())
	assert.Greater(t, retry.Delay, time.Duration(0))
	assert.Less(t, retry.Delay, 200*time.Millisecond)
}

func TestMaxRate_CancelsReservationOnRetry(t *testing.T) {
	// 10/s means one token every 100ms. If the reservation made by the
	// rejected call were not canceled, the bucket would owe two token
	// intervals instead of one, and the call below (issued one token
	// interval after the first admission) would itself be asked to retry
	// again.
	mw, err := middleware.NewMaxRate("10/s")
	require.NoError(t, err)

	base := func(ctx context.Context, m *domain.Message) error { return nil }
	require.NoError(t, mw.Handle(context.Background(), domain.NewMessage("t", nil, nil, time.Now()), base))

	rejected := domain.NewMessage("t", nil, nil, time.Now())
	err = mw.Handle(context.Background(), rejected, func(ctx context.Context, m *domain.Message) error {
		t.Fatal("next must not run while rate limited")
		return nil
	})
	var retry *domain.Retry
	require.ErrorAs(t, err, &retry)

	// retry.Delay is jittered to between half and all of the wait for the
	// next token, so sleep a full token interval instead of retry.Delay.
	time.Sleep(100*time.Millisecond + 20*time.Millisecond)

	called := false
	m := domain.NewMessage("t", nil, nil, time.Now())
	err = mw.Handle(context.Background(), m, func(ctx context.Context, m *domain.Message) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
