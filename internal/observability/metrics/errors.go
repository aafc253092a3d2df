package metrics

import (
	"cmp"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/vocalcoach/internal/errors"
)

// ErrorMetrics counts enhanced errors as they are built
type ErrorMetrics struct {
	Errors *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics on registry.
func NewErrorMetrics(registry prometheus.Registerer) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors by component, category and priority",
		}, []string{LabelComponent, LabelCategory, LabelPriority}),
	}
	if err := registry.Register(m.Errors); err != nil {
		return nil, fmt.Errorf("failed to register error metrics: %w", err)
	}
	return m, nil
}

// Record is an errors.ErrorHook
func (m *ErrorMetrics) Record(ee *errors.EnhancedError) {
	m.Errors.WithLabelValues(
		ee.GetComponent(),
		ee.GetCategory(),
		cmp.Or(ee.GetPriority(), "none"),
	).Inc()
}
