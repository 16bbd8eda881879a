package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Group runs long-lived tasks, one goroutine each, and waits for all of
// them. A panicking task is recovered and reported as an error; the other
// tasks keep running.
type Group struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func NewGroup(logger *slog.Logger) *Group {
	return &Group{logger: logger}
}

func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.run(ctx, name, fn); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

func (g *Group) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
	}()

	g.logger.Debug("task started", "task", name)
	err = fn(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Error("task failed", "task", name, "error", err)
		return fmt.Errorf("task %s: %w", name, err)
	}
	g.logger.Debug("task finished", "task", name)
	return nil
}

// Wait blocks until every task has returned. Cancellation is not an error.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}
