package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartchimera/internal/logging"
	"smartchimera/internal/policy"
	"smartchimera/internal/types"
)

// errorBody is the JSON shape of every failure.
type errorBody struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Reasons []string `json:"reasons,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, types.ErrInfeasible):
		return http.StatusUnprocessableEntity, "infeasible"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, types.ErrCollaborator):
		return http.StatusServiceUnavailable, "collaborator"
	case errors.Is(err, policy.ErrNoDefaultRules):
		return http.StatusInternalServerError, "configuration"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	var inf *types.InfeasibleError
	if errors.As(err, &inf) {
		body.Reasons = inf.Reasons
	}
	if status >= 500 {
		logging.APIError("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, field, reason string) {
	writeError(c, &types.ValidationError{Field: field, Reason: reason})
}
