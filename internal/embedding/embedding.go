// Package embedding wraps text-embedding backends behind a batch gateway.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyBatch is returned when Embed is called with no texts.
var ErrEmptyBatch = errors.New("empty embedding batch")

// Gateway converts texts into fixed-dimension vectors. A batch either fully
// succeeds, returning one vector per input in order, or fully fails; callers
// must not assume partial success.
type Gateway interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
