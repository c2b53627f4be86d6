package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/privkit/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func Strict() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(context.Context, error, Location) Action {
	return ActionFail
}

// LenientStrategy repairs what it can and records every problem it saw.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	errors []error
}

func Lenient(logger observability.Logger) *LenientStrategy {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &LenientStrategy{Logger: logger}
}

func (s *LenientStrategy) OnError(_ context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.Logger.Warn("recovering from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("error", err),
	)
	return ActionFix
}

// Errors returns the problems recorded so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
