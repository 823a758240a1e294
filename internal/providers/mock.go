package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockCorrector is a Corrector for testing. With no Fn set it returns the
// input unchanged.
type MockCorrector struct {
	// Configurable behavior
	Latency   time.Duration
	FailAfter int   // Fail after N requests (0 = never)
	Err       error // returned by every call when set
	Fn        func(text, instructions string) (string, error)

	requestCount atomic.Int64

	mu     sync.Mutex
	inputs []string
}

// NewMockCorrector creates a mock that echoes its input.
func NewMockCorrector() *MockCorrector {
	return &MockCorrector{}
}

// Name returns the client identifier.
func (c *MockCorrector) Name() string { return MockName }

// Correct applies Fn after the configured latency.
func (c *MockCorrector) Correct(ctx context.Context, text, instructions string) (string, error) {
	count := c.requestCount.Add(1)
	c.mu.Lock()
	c.inputs = append(c.inputs, text)
	c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return "", fmt.Errorf("mock corrector failed after %d requests", c.FailAfter)
	}
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Fn != nil {
		return c.Fn(text, instructions)
	}
	return text, nil
}

// RequestCount returns the number of requests made.
func (c *MockCorrector) RequestCount() int64 {
	return c.requestCount.Load()
}

// Inputs returns the texts passed to Correct, in call order.
func (c *MockCorrector) Inputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

// errMock is returned by FailingCorrector.
var errMock = errors.New("mock corrector configured to fail")

// FailingCorrector returns a mock whose every call fails.
func FailingCorrector() *MockCorrector {
	return &MockCorrector{Err: errMock}
}

var _ Corrector = (*MockCorrector)(nil)
