// Package tools declares the typed, side-effect-free queries agents may run
// against the context store, and the per-department registries that bind
// them. Tools never persist anything; the only write path in the system is
// the audit log.
package tools

import (
	"context"
	"time"
)

// Info describes a tool for planning prompts and plan validation.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Args        []string `json:"args,omitempty"` // recognized argument names
}

// Tool is a pure read over the context store.
type Tool interface {
	Info() Info

	// Execute runs the query. The returned map is the step's structured
	// output; an error becomes a recorded step failure, never a pipeline
	// abort.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Func adapts a function to the Tool interface.
type Func struct {
	Meta Info
	Run  func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (f Func) Info() Info { return f.Meta }

func (f Func) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f.Run(ctx, args)
}

// StringArg reads a string argument with a default.
func StringArg(args map[string]any, name, def string) string {
	if v, ok := args[name]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// WithTimeout wraps a tool so each execution is bounded. On expiry the step
// records {error: "timeout"}.
func WithTimeout(t Tool, d time.Duration) Tool {
	return Func{
		Meta: t.Info(),
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				out map[string]any
				err error
			}
			done := make(chan result, 1)
			go func() {
				out, err := t.Execute(ctx, args)
				done <- result{out, err}
			}()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case r := <-done:
				return r.out, r.err
			}
		},
	}
}
