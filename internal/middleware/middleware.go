// Package middleware implements the scoped wrappers composed around every
// task execution: max-tries, max-age, rate-limit, and an exception-reporting
// hook.
package middleware

import (
	"context"

	"github.com/taskflowio/ltq/internal/domain"
)

// Handler executes a message; it is the signature both the user callable
// and every middleware's "next" are adapted to.
type Handler func(ctx context.Context, m *domain.Message) error

// Middleware observes a message entering execution and observes completion
// or exception on exit. Implementations may short-circuit by returning
// *domain.Reject or *domain.Retry.
type Middleware interface {
	Handle(ctx context.Context, m *domain.Message, next Handler) error
}

// Chain composes middlewares around base in registration order: entering
// the chain enters each middleware's scope in order (mw[0] outermost),
// exiting unwinds in reverse. A Reject or Retry raised by any middleware or
// by base propagates outward unchanged.
func Chain(mws []Middleware, base Handler) Handler {
	h := base
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := h
		h = func(ctx context.Context, m *domain.Message) error {
			return mw.Handle(ctx, m, next)
		}
	}
	return h
}
