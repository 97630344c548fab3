package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HandlerFunc is the typed handler shape every tool implements.
type HandlerFunc[In any] func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, any, error)

// InputSchema infers the advertised input schema for In. The server does not
// enforce it; arguments are checked by Bind and the handlers.
func InputSchema[In any]() (*jsonschema.Schema, error) {
	return jsonschema.For[In](nil)
}

// Bind adapts a typed handler to a raw mcp.ToolHandler. Arguments are decoded
// here so a missing field or a wrong JSON type comes back as a
// "Validation error:" result instead of a protocol error.
func Bind[In any](handle HandlerFunc[In]) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args In
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		if err := decodeArgs(raw, &args); err != nil {
			return errorResult(err), nil
		}
		result, _, err := handle(ctx, req, args)
		if err != nil {
			return errorResult(err), nil
		}
		return result, nil
	}
}

// decodeArgs unmarshals raw into dst. Absent or null arguments leave dst at
// its zero value; unknown fields are ignored.
func decodeArgs(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return invalid("", "arguments must be a JSON object")
	}

	err := json.Unmarshal(trimmed, dst)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return invalid(typeErr.Field, "expected %s, got %s", jsonKind(typeErr.Type.Kind().String()), typeErr.Value)
	}
	return invalid("", "malformed arguments: %v", err)
}

// jsonKind names a Go kind the way a JSON caller would read it.
func jsonKind(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return "integer"
	case "float32", "float64":
		return "number"
	case "bool":
		return "boolean"
	default:
		return kind
	}
}
