package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"Confluence/internal/domain/models"
	xhttp "Confluence/pkg/http"
)

// classify maps a transport or HTTP failure to an ErrorKind from its
// structure: status code, decode failure or network error type.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	// caller cancellation is not an upstream failure
	if errors.Is(err, context.Canceled) {
		return err
	}

	var (
		se *xhttp.StatusError
		de *xhttp.DecodeError
		oe *net.OpError
	)
	kind := models.Fatal
	switch {
	case errors.As(err, &se):
		kind = statusKind(se.Status)
	case errors.As(err, &de):
		kind = models.ProtocolDesync
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		// connection broke mid-exchange; the next request needs a new one
		kind = models.ProtocolDesync
	case models.KindOf(err) == models.Timeout:
		kind = models.Timeout
	case errors.As(err, &oe):
		kind = models.Timeout
	}
	return models.NewUpstreamError(kind, op, err)
}

func statusKind(status int) models.ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return models.RateLimited
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.Timeout
	default:
		return models.Fatal
	}
}
