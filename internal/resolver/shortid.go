package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Latest refers to the most recently completed cycle. "latest~N" refers to
// the cycle completed N cycles before it.
const Latest = "latest"

// maxListed caps how many candidates an ambiguity message lists.
const maxListed = 10

// ResolveCycleID resolves a cycle reference to a full cycle id.
//
// A reference is one of:
//   - a full UUID, which must still be retained
//   - "latest" or "latest~N", counted back through the completion index
//   - a hex prefix of at least MinShortIDLength characters, matched against
//     the completion index; matches are reported newest first
func ResolveCycleID(ctx context.Context, bbClient *blackboard.Client, ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))

	if strings.HasPrefix(ref, Latest) {
		return resolveRelative(ctx, bbClient, ref)
	}

	if _, err := uuid.Parse(ref); err == nil && len(ref) == 36 {
		_, err := bbClient.GetCycle(ctx, ref)
		if err != nil {
			if blackboard.IsNotFound(err) {
				return "", &NotFoundError{ShortID: ref}
			}
			return "", fmt.Errorf("failed to verify cycle existence: %w", err)
		}
		return ref, nil
	}

	if len(ref) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}
	if strings.Trim(ref, "0123456789abcdef-") != "" {
		return "", fmt.Errorf("short ID '%s' may only contain hex digits and hyphens", ref)
	}

	matches, err := bbClient.MatchCycleIDs(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to search for cycle: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: ref, Matches: matches}
	}
}

// resolveRelative handles "latest" and "latest~N".
func resolveRelative(ctx context.Context, bbClient *blackboard.Client, ref string) (string, error) {
	back := 0
	if rest := strings.TrimPrefix(ref, Latest); rest != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(rest, "~"))
		if !strings.HasPrefix(rest, "~") || err != nil || n < 0 {
			return "", fmt.Errorf("invalid relative reference '%s' (expected latest or latest~N)", ref)
		}
		back = n
	}

	id, err := bbClient.CycleIDAt(ctx, back)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return "", &NotFoundError{ShortID: ref}
		}
		return "", fmt.Errorf("failed to read cycle index: %w", err)
	}
	return id, nil
}

// NotFoundError indicates no retained cycle matched the reference.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no cycles found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple cycles matched the short ID.
// Matches are ordered newest first.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d cycles", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous short IDs.
// Lists all matching UUIDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous short ID '%s' matches %d cycles:\n", err.ShortID, len(err.Matches))

	for i, id := range err.Matches {
		if i == maxListed {
			fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-maxListed)
			break
		}
		fmt.Fprintf(&b, "  %s\n", id)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the cycle.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
