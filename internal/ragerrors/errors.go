// Package ragerrors defines the sentinel error taxonomy shared by every
// layer of the service, from storage up through the HTTP and MCP edges.
package ragerrors

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", err) at layer boundaries
// and recover the kind at the edge with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedOrCorrupt = errors.New("unsupported or corrupt input")
	ErrEmbedderUnavailable  = errors.New("embedder unavailable")
	ErrLLMUnavailable       = errors.New("llm unavailable")
	ErrLLMTimeout           = errors.New("llm timeout")
	ErrStorageError         = errors.New("storage error")
	ErrRateLimited          = errors.New("rate limited")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("request timeout")
)

// JSONRPCCode maps a sentinel kind to its JSON-RPC 2.0 error code per the
// MCP dispatcher's state machine. Unrecognized errors map to -32603.
func JSONRPCCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return -32602
	case errors.Is(err, ErrAlreadyExists):
		return -32602
	case errors.Is(err, ErrInvalidInput):
		return -32602
	case errors.Is(err, ErrUnsupportedOrCorrupt):
		return -32602
	default:
		return -32603
	}
}

// HTTPStatus maps a sentinel kind to the HTTP status code callers see.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrAlreadyExists):
		return 409
	case errors.Is(err, ErrInvalidInput):
		return 400
	case errors.Is(err, ErrUnsupportedOrCorrupt):
		return 400
	case errors.Is(err, ErrEmbedderUnavailable):
		return 503
	case errors.Is(err, ErrLLMUnavailable), errors.Is(err, ErrLLMTimeout):
		return 504
	case errors.Is(err, ErrStorageError):
		return 500
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrTimeout):
		return 504
	default:
		return 500
	}
}
