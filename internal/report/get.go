package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// GetCycle retrieves a single persisted cycle by id and writes it to w, as
// pretty-printed JSON when asJSON is set and as a readable report otherwise.
func GetCycle(ctx context.Context, bbClient *blackboard.Client, cycleID string, asJSON bool, w io.Writer) error {
	if _, err := uuid.Parse(cycleID); err != nil {
		return fmt.Errorf("invalid cycle ID format: must be a valid UUID")
	}

	cycle, err := bbClient.GetCycle(ctx, cycleID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &CycleNotFoundError{CycleID: cycleID}
		}
		return fmt.Errorf("failed to fetch cycle: %w", err)
	}

	if asJSON {
		return FormatSingleJSON(w, cycle)
	}
	FormatDetail(w, cycle)
	return nil
}

// CycleNotFoundError represents a specific "cycle not found" error.
type CycleNotFoundError struct {
	CycleID string
}

func (e *CycleNotFoundError) Error() string {
	return fmt.Sprintf("cycle with ID '%s' not found", e.CycleID)
}

// IsNotFound returns true if the error is a CycleNotFoundError.
func IsNotFound(err error) bool {
	var target *CycleNotFoundError
	return errors.As(err, &target)
}
