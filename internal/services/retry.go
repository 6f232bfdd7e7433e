package services

import (
	"context"
	"errors"
	"fmt"

	"medidispatch/internal/repositories/interfaces"
)

// errNoChange lets an apply func report that the document is already in
// the wanted state, so nothing is written.
var errNoChange = errors.New("no change")

// casUpdate reloads the document, applies fn and writes it back with the
// repository's version compare-and-swap, retrying on version conflicts.
func casUpdate[T any](
	ctx context.Context,
	attempts int,
	load func(context.Context) (*T, error),
	save func(context.Context, *T) error,
	apply func(*T) error,
) (*T, bool, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		doc, err := load(ctx)
		if err != nil {
			return nil, false, err
		}

		if err := apply(doc); err != nil {
			if errors.Is(err, errNoChange) {
				return doc, false, nil
			}
			return nil, false, err
		}

		err = save(ctx, doc)
		if err == nil {
			return doc, true, nil
		}
		if !errors.Is(err, interfaces.ErrVersionConflict) {
			return nil, false, err
		}
		lastErr = err
	}

	return nil, false, conflict(fmt.Sprintf("gave up after %d attempts", attempts), lastErr)
}
