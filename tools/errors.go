package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/embedsearch-mcp/backend"
)

// ValidationError reports malformed or missing tool arguments. It is always
// raised before any backend request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Failure classifies why a tool call failed.
type Failure int

const (
	FailureNone Failure = iota
	FailureValidation
	FailureNotFound
	FailureUnavailable
	FailureContract
	FailureCanceled
	FailureInternal
)

var failureLabels = map[Failure]string{
	FailureValidation:  "Validation error",
	FailureNotFound:    "Not found",
	FailureUnavailable: "Backend unavailable",
	FailureContract:    "Backend contract error",
	FailureCanceled:    "Canceled",
	FailureInternal:    "Error",
}

// Classify maps an error onto a Failure. A 404 from the backend is reported
// as FailureNotFound rather than FailureUnavailable.
func Classify(err error) Failure {
	var (
		validationErr  *ValidationError
		unavailableErr *backend.UnavailableError
		contractErr    *backend.ContractError
	)
	switch {
	case err == nil:
		return FailureNone
	case errors.As(err, &validationErr):
		return FailureValidation
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.As(err, &contractErr):
		return FailureContract
	case backend.IsNotFound(err):
		return FailureNotFound
	case errors.As(err, &unavailableErr):
		return FailureUnavailable
	default:
		return FailureInternal
	}
}

// errorResult turns err into an IsError tool result whose text starts with
// the failure label, e.g. "Validation error: query: must not be empty".
func errorResult(err error) *mcp.CallToolResult {
	label := failureLabels[Classify(err)]
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", label, err)}},
		IsError: true,
	}
}

// successResult carries both a Markdown rendering and the structured payload.
func successResult(text string, payload any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: payload,
	}
}
