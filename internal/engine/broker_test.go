package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestBrokerAwaitResolve(t *testing.T) {
	b := NewPromptBroker()

	got := make(chan any, 1)
	go func() {
		v, err := b.Await(context.Background(), "exec-1")
		assert.NoError(t, err)
		got <- v
	}()

	require.Eventually(t, func() bool {
		return b.Waiting("exec-1")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Resolve("exec-1", "answer"))

	select {
	case v := <-got:
		assert.Equal(t, "answer", v)
	case <-time.After(time.Second):
		t.Fatal("await did not return after resolve")
	}
	assert.False(t, b.Waiting("exec-1"))
}

func TestBrokerResolveDismissal(t *testing.T) {
	b := NewPromptBroker()

	got := make(chan any, 1)
	go func() {
		v, err := b.Await(context.Background(), "exec-1")
		assert.NoError(t, err)
		got <- v
	}()

	require.Eventually(t, func() bool { return b.Waiting("exec-1") }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Resolve("exec-1", nil))
	assert.Nil(t, <-got)
}

func TestBrokerResolveWithoutWaiter(t *testing.T) {
	b := NewPromptBroker()

	err := b.Resolve("exec-1", "answer")
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)
}

func TestBrokerSecondAwaitConflicts(t *testing.T) {
	b := NewPromptBroker()

	go func() {
		_, _ = b.Await(context.Background(), "exec-1")
	}()
	require.Eventually(t, func() bool { return b.Waiting("exec-1") }, time.Second, 5*time.Millisecond)

	_, err := b.Await(context.Background(), "exec-1")
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeConflict, fe.Code)

	require.NoError(t, b.Resolve("exec-1", nil))
}

func TestBrokerAwaitCancelled(t *testing.T) {
	b := NewPromptBroker()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Await(ctx, "exec-1")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return b.Waiting("exec-1") }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-errCh
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCancelled, fe.Code)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, b.Waiting("exec-1"))
}
