package interfaces

import "context"

// Generator is the external text-generation service behind the
// assistant feature. Implementations must return an error rather than
// fabricating output; the caller substitutes user-facing fallback text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
