package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiva/freightroute/internal/repository"
)

// ─── Error categories ───────────────────────────────────────
//
// Every error leaving this package wraps exactly one of these. Handlers map
// them to HTTP status codes with errors.Is.

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrTimeout is returned when a write could not finish before its
	// deadline, usually while waiting for a row lock.
	ErrTimeout = errors.New("timed out waiting for route lock")
)

// ─── Specific errors ────────────────────────────────────────

var (
	ErrRouteNotFound      = fmt.Errorf("route plan %w", ErrNotFound)
	ErrSimulationNotFound = fmt.Errorf("simulation %w", ErrNotFound)
	ErrPlacementNotFound  = fmt.Errorf("cargo placement %w", ErrNotFound)
	ErrVanNotFound        = fmt.Errorf("van %w", ErrNotFound)
	ErrLoadNotFound       = fmt.Errorf("load %w", ErrNotFound)

	ErrSimulationAlreadyApplied = fmt.Errorf("%w: simulation already applied", ErrInvalidState)
	ErrSourceNotSimulatable     = fmt.Errorf("%w: only DRAFT or ACTIVE routes can be simulated", ErrInvalidState)
	ErrSourceSuperseded         = fmt.Errorf("%w: source route is no longer DRAFT or ACTIVE", ErrInvalidState)
	ErrRouteArchived            = fmt.Errorf("%w: route is archived", ErrInvalidState)
	ErrRouteFrozen              = fmt.Errorf("%w: route belongs to an applied simulation", ErrInvalidState)
	ErrIllegalTransition        = fmt.Errorf("%w: status transition not allowed", ErrInvalidState)

	ErrVersionConflict = fmt.Errorf("%w: route was modified by another request", ErrConcurrencyConflict)
)

// ValidationError lists every problem found in one request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// problems collects validation messages.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// ─── Classification ─────────────────────────────────────────

// notFoundAs replaces a repository not-found error with the specific one.
func notFoundAs(err, specific error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return specific
	}
	return err
}

// classifyError maps low-level storage errors onto the categories above.
// Already classified errors pass through untouched.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	// Already a service error.
	for _, known := range []error{ErrNotFound, ErrInvalidState, ErrValidation, ErrConcurrencyConflict, ErrTimeout} {
		if errors.Is(err, known) {
			return err
		}
	}

	// Context timeout → lock wait exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}

	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return ErrVersionConflict
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrMissingReference):
		return fmt.Errorf("%s: referenced record %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return invalidf("%s: duplicate value", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return fmt.Errorf("%s: %w", op, ErrVersionConflict)
		case "55P03": // lock_not_available
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		case "23514", "22P02", "22003": // check violation, bad text repr, out of range
			return invalidf("%s: value rejected by storage", op)
		}
	}

	return fmt.Errorf("%s: unexpected error: %w", op, err)
}

// outcome labels an error for telemetry.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
