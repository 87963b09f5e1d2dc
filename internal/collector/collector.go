// Package collector defines the fact collector contract and its typed errors.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// Collector gathers the raw fact blob of a single unit.
type Collector interface {
	Collect(ctx context.Context, params ConnectionParams) ([]byte, error)
}

// ConnectionParams describe how to reach a unit.
type ConnectionParams struct {
	UnitID      int64
	Name        string
	Address     string
	Kind        models.UnitKind
	Credentials *models.Credentials
}

// Target returns the address when known, the name otherwise.
func (p ConnectionParams) Target() string {
	if p.Address != "" {
		return p.Address
	}
	return p.Name
}

type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindUnreachable ErrorKind = "unreachable"
	KindTimeout     ErrorKind = "timeout"
	KindParse       ErrorKind = "parse"
	KindOther       ErrorKind = "other"
)

// Error is returned by collectors for every classified failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a collector error, KindOther for anything else.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// IsTransient reports whether retrying the collection later may succeed.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnreachable, KindTimeout:
		return true
	default:
		return false
	}
}

// Registry maps unit kinds to collectors.
type Registry struct {
	mu         sync.RWMutex
	collectors map[models.UnitKind]Collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[models.UnitKind]Collector)}
}

func (r *Registry) Register(c Collector, kinds ...models.UnitKind) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.collectors[k] = c
	}
	return r
}

func (r *Registry) For(kind models.UnitKind) (Collector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[kind]
	if !ok {
		return nil, NewError(KindOther, fmt.Sprintf("no collector registered for unit kind %q", kind), nil)
	}
	return c, nil
}
