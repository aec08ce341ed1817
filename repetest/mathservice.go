// Copyright (C) 2024 The REPE Authors.

package repetest

import (
	"context"
	"time"

	"github.com/repehq/repe"
)

// MathService is a small demonstration service exposing add, multiply,
// divide, echo, and status methods, mirroring the reference math service
// used to validate the wire protocol end to end. Register it on a Server
// with MathService.Register.
type MathService struct {
	started time.Time
	conns   int
}

// NewMathService constructs a MathService whose uptime is measured from
// construction.
func NewMathService() *MathService {
	return &MathService{started: time.Now()}
}

type addParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type multiplyParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type divideParams struct {
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

type echoParams struct {
	Message string `json:"message"`
}

// Register installs the service's handlers on s under /add, /multiply,
// /divide, /echo, and /status.
func (m *MathService) Register(s *repe.Server) {
	codecs := repe.DefaultCodecs()

	s.Handle("/add", func(_ context.Context, _ any, raw repe.Message) (any, error) {
		var p addParams
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return map[string]any{"result": p.A + p.B}, nil
	})

	s.Handle("/multiply", func(_ context.Context, _ any, raw repe.Message) (any, error) {
		var p multiplyParams
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return map[string]any{"result": p.X * p.Y}, nil
	})

	s.Handle("/divide", func(_ context.Context, _ any, raw repe.Message) (any, error) {
		var p divideParams
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		if p.Denominator == 0 {
			return repe.NewMessage(raw.Header.ID, raw.ParseQuery(), raw.Header.QueryFormat,
				[]byte("Division by zero"), repe.BodyUTF8, repe.WithErrorCode(repe.InvalidBody)), nil
		}
		return map[string]any{"result": p.Numerator / p.Denominator}, nil
	})

	s.Handle("/echo", func(_ context.Context, _ any, raw repe.Message) (any, error) {
		var p echoParams
		if err := raw.ParseBodyAs(codecs, &p); err != nil {
			return nil, err
		}
		return map[string]any{"result": "Echo: " + p.Message}, nil
	})

	s.Handle("/status", func(_ context.Context, _ any, _ repe.Message) (any, error) {
		return map[string]any{
			"status":      "online",
			"version":     "1.0.0",
			"uptime":      time.Since(m.started).Seconds(),
			"connections": m.conns,
		}, nil
	})
}
