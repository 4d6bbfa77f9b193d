// Package opponent provides computer players for the console client.
package opponent

import (
	"context"
	"errors"

	"github.com/park285/netchess/internal/rules"
)

var (
	ErrNoMove    = errors.New("no legal move")
	ErrNotToMove = errors.New("side is not to move")
)

// Engine chooses one legal move for side on b. Implementations must not
// modify b.
type Engine interface {
	NextMove(ctx context.Context, b *rules.Board, side rules.Team) (rules.Move, error)
	Close() error
}
