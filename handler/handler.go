// Copyright (C) 2024 The REPE Authors.

// Package handler provides adapters to the repe.Handler type for functions
// with typed parameters and results, so a service method can be written as
// a plain Go function instead of juggling repe.Message and a CodecSet by
// hand.
//
// Parameters are decoded with the CodecSet passed to each adapter, according
// to the incoming repe.Message's BodyFormat, via Message.ParseBodyAs, so
// these adapters work for JSON and BEVE bodies; a raw or UTF-8 body fails
// to decode into a typed P, the same as calling ParseBodyAs directly would.
// Results are returned to the Server, which encodes them as its default
// response body.
package handler

import (
	"context"

	"github.com/repehq/repe"
)

// ParamResultError adapts a function f that accepts parameters of type P and
// returns a result of type R and an error, to a repe.Handler.
func ParamResultError[P, R any](codecs repe.CodecSet, f func(context.Context, P) (R, error)) repe.Handler {
	return func(ctx context.Context, _ any, raw repe.Message) (any, error) {
		var p P
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return f(ctx, p)
	}
}

// ParamResult adapts a function f that accepts parameters of type P and
// returns a result of type R without error, to a repe.Handler.
func ParamResult[P, R any](codecs repe.CodecSet, f func(context.Context, P) R) repe.Handler {
	return func(ctx context.Context, _ any, raw repe.Message) (any, error) {
		var p P
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return f(ctx, p), nil
	}
}

// ParamError adapts a function f that accepts parameters of type P and
// returns only an error, to a repe.Handler.
func ParamError[P any](codecs repe.CodecSet, f func(context.Context, P) error) repe.Handler {
	return func(ctx context.Context, _ any, raw repe.Message) (any, error) {
		var p P
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return nil, f(ctx, p)
	}
}

// ResultError adapts a function f that accepts no parameters and returns a
// result of type R and an error, to a repe.Handler.
func ResultError[R any](f func(context.Context) (R, error)) repe.Handler {
	return func(ctx context.Context, _ any, _ repe.Message) (any, error) {
		return f(ctx)
	}
}
