package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-desk/pkg/logging"
)

const DefaultShutdownTimeout = 10 * time.Second

// HTTPService runs the API until its context ends. It satisfies suture.Service.
type HTTPService struct {
	api             *API
	server          *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger

	listening chan net.Addr
}

func NewHTTPService(address string, api *API, shutdownTimeout time.Duration, logger logging.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPService{
		api: api,
		server: &http.Server{
			Addr:              address,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		listening:       make(chan net.Addr, 1),
	}
}

// Listening yields the bound address once the listener is up
func (h *HTTPService) Listening() <-chan net.Addr {
	return h.listening
}

func (h *HTTPService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("http server failed to listen on %s: %w", h.server.Addr, err)
	}
	h.logger.Infof("HTTP API listening on %s", listener.Addr())
	select {
	case h.listening <- listener.Addr():
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		h.api.CloseTails()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		h.logger.Infof("HTTP API stopped")
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return "http-api"
}
