package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// UnavailableError reports that the backend could not serve a request:
// the connection failed, the request timed out, or a non-2xx status came back.
type UnavailableError struct {
	Op         string // backend operation, e.g. "search"
	StatusCode int    // 0 when no response was received
	Message    string // backend-provided error text, if any
	Err        error  // underlying transport error, if any
}

func (e *UnavailableError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: backend unavailable", e.Op)
	}
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// NotFound reports whether the backend answered 404.
func (e *UnavailableError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ContractError reports a response body that does not have the expected shape.
// It usually means the adapter and the backend disagree on the API version.
type ContractError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unexpected response: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Detail)
}

func (e *ContractError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable) && unavailable.NotFound()
}
