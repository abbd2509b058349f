package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowio/ltq/internal/app"
	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
)

func TestApp_RunsMultipleWorkers(t *testing.T) {
	mem := broker.NewMemory()
	a := app.New(mem, 4, 5*time.Millisecond, nil)

	var sumCalls, mulCalls int32
	sum, err := domain.NewTask("sum", func(ctx context.Context, args []any, kwargs map[string]any) error {
		atomic.AddInt32(&sumCalls, 1)
		return nil
	}, domain.Options{}, mem)
	require.NoError(t, err)

	mul, err := domain.NewTask("mul", func(ctx context.Context, args []any, kwargs map[string]any) error {
		atomic.AddInt32(&mulCalls, 1)
		return nil
	}, domain.Options{}, mem)
	require.NoError(t, err)

	require.NoError(t, a.RegisterTask(sum))
	require.NoError(t, a.RegisterTask(mul))

	_, err = sum.Send(context.Background(), nil, nil)
	require.NoError(t, err)
	_, err = mul.Send(context.Background(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = a.Run(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&sumCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&mulCalls))
}

func TestApp_DuplicateRegistrationErrors(t *testing.T) {
	mem := broker.NewMemory()
	a := app.New(mem, 1, 5*time.Millisecond, nil)

	task, err := domain.NewTask("dup", func(ctx context.Context, args []any, kwargs map[string]any) error {
		return nil
	}, domain.Options{}, mem)
	require.NoError(t, err)

	require.NoError(t, a.RegisterTask(task))
	assert.Error(t, a.RegisterTask(task))
}

func TestApp_NoWorkersErrors(t *testing.T) {
	mem := broker.NewMemory()
	a := app.New(mem, 1, 5*time.Millisecond, nil)
	assert.Error(t, a.Run(context.Background()))
}
