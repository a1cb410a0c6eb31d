package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInfeasible marks results that cannot satisfy hard constraints.
	ErrInfeasible = errors.New("infeasible")
	// ErrCollaborator marks failures of the evidence graph or other collaborators.
	ErrCollaborator = errors.New("collaborator failure")
	// ErrValidation marks malformed requests.
	ErrValidation = errors.New("invalid request")
)

// InfeasibleError is a property of the input, not a transient failure.
type InfeasibleError struct {
	Reasons []string
}

func (e *InfeasibleError) Error() string {
	if len(e.Reasons) == 0 {
		return "infeasible request"
	}
	return "infeasible request: " + strings.Join(e.Reasons, "; ")
}

// Is lets errors.Is(err, ErrInfeasible) match.
func (e *InfeasibleError) Is(target error) bool {
	return target == ErrInfeasible
}

// Infeasible builds an InfeasibleError from reasons.
func Infeasible(reasons ...string) *InfeasibleError {
	return &InfeasibleError{Reasons: reasons}
}

// CollaboratorError wraps a failed call to an external collaborator.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCollaborator) match.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// WrapCollaborator returns nil for a nil err.
func WrapCollaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
