// Package mock is a scriptable provider.Adapter for tests: it replays a
// fixed event script instead of calling a real SDK, mirroring the
// teacher's mock ChatModel test doubles (graph/model/*/*, *_test.go).
package mock

import (
	"context"
	"sync"

	"github.com/hansjm10/alphred/internal/provider"
)

// Adapter replays Script for every Invoke call, recording each request
// it was given.
type Adapter struct {
	NameValue string
	Script    []provider.Event
	Err       error

	mu       sync.Mutex
	requests []provider.InvokeRequest
}

// New builds a mock adapter that emits script in order and then
// returns err (nil by default).
func New(name string, script []provider.Event, err error) *Adapter {
	return &Adapter{NameValue: name, Script: script, Err: err}
}

// Name returns the configured adapter name.
func (a *Adapter) Name() string { return a.NameValue }

// Invoke replays the script, recording req for assertions.
func (a *Adapter) Invoke(ctx context.Context, req provider.InvokeRequest, emit func(provider.Event) error) error {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	for _, ev := range a.Script {
		if err := ctx.Err(); err != nil {
			return provider.NewError(provider.ErrTimeout, "timeout", "context cancelled mid-stream", err)
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return a.Err
}

// Requests returns every request this adapter has received, in order.
func (a *Adapter) Requests() []provider.InvokeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]provider.InvokeRequest, len(a.requests))
	copy(out, a.requests)
	return out
}
