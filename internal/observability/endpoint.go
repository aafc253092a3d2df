package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/tphakala/vocalcoach/internal/conf"
	verrors "github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
	metricspkg "github.com/tphakala/vocalcoach/internal/observability/metrics"
)

// Endpoint serves the Prometheus scrape endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	listener      net.Listener
	wg            sync.WaitGroup
}

// NewEndpoint creates an endpoint for the metrics settings. It fails when
// the endpoint is disabled.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, verrors.Newf("metrics endpoint not enabled in settings").
			Component("observability").
			Category(verrors.CategoryConfiguration).
			Build()
	}
	return &Endpoint{
		listenAddress: settings.Listen,
		metrics:       metrics,
	}, nil
}

// Start binds the listen address and serves until ctx is cancelled. The
// returned error only reports bind failures.
func (e *Endpoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return verrors.New(err).
			Component("observability").
			Category(verrors.CategoryNetwork).
			Context("address", e.listenAddress).
			Build()
	}
	e.listener = ln
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricspkg.ShutdownTimeout,
	}

	log := GetLogger()
	e.wg.Go(func() {
		log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics HTTP server error", logger.Error(err))
		}
	})
	e.wg.Go(func() {
		<-ctx.Done()
		e.shutdown()
	})
	return nil
}

func (e *Endpoint) shutdown() {
	GetLogger().Info("stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		GetLogger().Error("metrics server shutdown error", logger.Error(err))
	}
}

// Wait blocks until the server goroutines have exited
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

// Addr returns the bound address, or the configured one before Start
func (e *Endpoint) Addr() string {
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.listenAddress
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
