package httptransport

import (
	"fmt"
	"log/slog"

	"github.com/i2y/restbridge/internal/usecase"
)

// DefaultHandle names the client used when an operation selects none.
const DefaultHandle = usecase.DefaultHTTPClient

// Router implements usecase.TransportResolver and routes invocations to the
// transport registered under the operation's HTTP client handle.
type Router struct {
	transports map[string]usecase.Transport
	logger     *slog.Logger
}

// NewRouter creates a new transport router.
func NewRouter(transports map[string]usecase.Transport, logger *slog.Logger) *Router {
	return &Router{
		transports: transports,
		logger:     logger.With("component", "transport_router"),
	}
}

// Transport returns the transport for handle. The empty handle selects DefaultHandle.
func (r *Router) Transport(handle string) (usecase.Transport, error) {
	if handle == "" {
		handle = DefaultHandle
	}
	t, ok := r.transports[handle]
	if !ok {
		r.logger.Error("Unknown HTTP client handle", slog.String("handle", handle))
		return nil, fmt.Errorf("%w: %s", usecase.ErrTransportNotFound, handle)
	}
	r.logger.Debug("Routing to HTTP client", slog.String("handle", handle))
	return t, nil
}
