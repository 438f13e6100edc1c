package headless

import (
	"context"
	"errors"

	"github.com/jobradar/jobradar/internal/discovery"
)

// Noop implements discovery.Fetcher but always fails, for builds where a
// browser is not available.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// FetchPage returns an error since this is a stub implementation.
func (Noop) FetchPage(context.Context, discovery.PageRequest) (discovery.PageResult, error) {
	return discovery.PageResult{}, errors.New("headless fetcher not configured")
}
