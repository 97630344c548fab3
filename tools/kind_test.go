package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexandro/embedsearch-mcp/backend"
)

func TestKinds_ClosedSet(t *testing.T) {
	names := make([]string, 0, kindCount)
	for _, k := range Kinds() {
		names = append(names, k.Name())
		assert.Equal(t, k.Name(), k.String())
	}
	assert.Equal(t, []string{"search_code", "index_project", "list_projects", "project_info", "cache_stats"}, names)
	assert.Equal(t, "unknown", Kind(99).Name())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"nil", nil, FailureNone},
		{"validation", invalid("query", "required"), FailureValidation},
		{"wrapped validation", fmt.Errorf("ctx: %w", invalid("k", "too big")), FailureValidation},
		{"unavailable", &backend.UnavailableError{Op: "search", StatusCode: 503}, FailureUnavailable},
		{"not found", &backend.UnavailableError{Op: "project info", StatusCode: 404}, FailureNotFound},
		{"contract", &backend.ContractError{Op: "search", Detail: "bad score"}, FailureContract},
		{"canceled", &backend.UnavailableError{Op: "search", Err: context.Canceled}, FailureCanceled},
		{"other", errors.New("boom"), FailureInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
