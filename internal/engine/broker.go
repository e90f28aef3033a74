package engine

import (
	"context"
	"sync"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// PromptBroker connects a parked interpreter goroutine with the external
// response that resumes it. At most one prompt may be outstanding per
// execution.
type PromptBroker struct {
	mu      sync.Mutex
	waiting map[string]chan any
}

func NewPromptBroker() *PromptBroker {
	return &PromptBroker{waiting: make(map[string]chan any)}
}

// Await registers the execution as waiting and blocks until Resolve delivers
// a value or ctx ends. A nil value means the prompt was dismissed.
func (b *PromptBroker) Await(ctx context.Context, executionID string) (any, error) {
	b.mu.Lock()
	if _, exists := b.waiting[executionID]; exists {
		b.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "execution %s already has an outstanding prompt", executionID)
	}
	ch := make(chan any, 1)
	b.waiting[executionID] = ch
	b.mu.Unlock()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.waiting, executionID)
		b.mu.Unlock()
		return nil, schema.NewError(schema.ErrCodeCancelled, "execution cancelled while waiting for prompt").WithCause(ctx.Err())
	}
}

// Resolve delivers the response for an outstanding prompt.
func (b *PromptBroker) Resolve(executionID string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.waiting[executionID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %s is not waiting for a prompt", executionID)
	}
	delete(b.waiting, executionID)
	ch <- value
	return nil
}

// Waiting reports whether the execution has an outstanding prompt.
func (b *PromptBroker) Waiting(executionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.waiting[executionID]
	return ok
}
