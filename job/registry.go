package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarrylabs/quarry/codec"
)

// HandlerFunc is a type-erased job handler: raw payload in, raw result out.
// The typed Definition[T, R] is converted to a HandlerFunc at registration
// time by closing over codec decode/encode and the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Registry maps job types to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	codec    codec.Codec
	handlers map[string]HandlerFunc
	defaults map[string]Options
}

// NewRegistry creates an empty registry using the JSON codec.
func NewRegistry() *Registry {
	return NewRegistryWithCodec(codec.JSON{})
}

// NewRegistryWithCodec creates an empty registry using the given codec for
// payload and result serialization.
func NewRegistryWithCodec(c codec.Codec) *Registry {
	return &Registry{
		codec:    c,
		handlers: make(map[string]HandlerFunc),
		defaults: make(map[string]Options),
	}
}

// Codec returns the codec used for payload and result serialization.
func (r *Registry) Codec() codec.Codec { return r.codec }

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that decodes the payload into T, runs the typed
// handler, and encodes the result R.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T, R any](r *Registry, def *Definition[T, R]) {
	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		var t T
		if len(payload) > 0 {
			if err := r.codec.Unmarshal(payload, &t); err != nil {
				return nil, fmt.Errorf("decode payload for job type %q: %w", def.Name, err)
			}
		}

		result, err := def.Handler(ctx, t)
		if err != nil {
			return nil, err
		}

		encoded, err := r.codec.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result for job type %q: %w", def.Name, err)
		}
		return encoded, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
	r.defaults[def.Name] = def.Opts
}

// Defaults returns the submission defaults recorded with the definition
// for the given job type. Returns false if the type is not registered.
func (r *Registry) Defaults(jobType string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.defaults[jobType]
	return o, ok
}

// Get returns the handler for the given job type.
// Returns false if no handler is registered.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns all registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
