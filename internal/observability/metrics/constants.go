// Package metrics provides custom Prometheus metrics for vocalcoach components.
package metrics

import "time"

// Namespace prefixes every metric name
const Namespace = "vocalcoach"

// ShutdownTimeout bounds the metrics server shutdown
const ShutdownTimeout = 5 * time.Second

// Label names
const (
	LabelStatus    = "status"
	LabelLevel     = "level"
	LabelComponent = "component"
	LabelCategory  = "category"
	LabelPriority  = "priority"
)
