package headless

import (
	"context"
	"errors"

	"github.com/pagewatch/fetchd/internal/fetch"
)

// Noop implements fetch.Backend but always fails, standing in for a browser
// backend that is disabled in the current configuration.
type Noop struct {
	name string
}

// NewNoop creates a Noop stand-in reporting the given backend name.
func NewNoop(name string) *Noop {
	return &Noop{name: name}
}

// Fetch always reports the backend as unavailable.
func (n *Noop) Fetch(_ context.Context, _ fetch.Target) (fetch.Result, error) {
	return fetch.Result{}, fetch.NewError(fetch.KindBackendUnavailable, n.name,
		errors.New("browser backend disabled by configuration"))
}
