package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrLadderExhausted is returned when every attempt of a ladder failed.
var ErrLadderExhausted = errors.New("all attempts failed")

// Attempt is one rung of a fallback ladder. Run returns the produced file.
type Attempt struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// FirstSuccess runs attempts in order and returns the output and name of the
// first one that succeeds. Failures are logged and collected.
func FirstSuccess(ctx context.Context, logger *zap.Logger, attempts []Attempt) (string, string, error) {
	var errs []error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, err := a.Run(ctx)
		if err == nil {
			return out, a.Name, nil
		}
		logger.Warn("attempt failed", zap.String("attempt", a.Name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
	}
	if len(errs) == 0 {
		return "", "", ErrLadderExhausted
	}
	return "", "", fmt.Errorf("%w: %w", ErrLadderExhausted, errors.Join(errs...))
}
