// Package generation provides answer generators over a grounding prompt.
package generation

import (
	"context"
	"errors"
)

// ErrProvider marks failures reported by a remote generation provider.
var ErrProvider = errors.New("generation provider error")

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StaticGenerator always answers with the same text. Useful offline and in tests.
type StaticGenerator struct {
	Text string
}

// Generate returns g.Text.
func (g StaticGenerator) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.Text, nil
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
