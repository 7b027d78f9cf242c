// Package notify defines the notification boundary: the real-time transport
// that pushes newly persisted messages to connected clients. The core only
// promises a post-commit, fire-and-forget hand-off; delivery is neither
// guaranteed nor acknowledged, and a sink failure never rolls back a write.
package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"direct-chat/internal/domain"
)

// Sink receives newly created messages addressed by chat identifier.
//
// Implementations must be safe for concurrent use and should return quickly;
// callers invoke Publish after the owning transaction has committed and treat
// errors as observability events, not failures.
type Sink interface {
	Publish(ctx context.Context, chatID string, msg *domain.Message) error
}

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_published_total",
			Help: "Messages handed to the notification sink.",
		},
		[]string{"sink"},
	)
	failedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Notification publishes that returned an error.",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(publishedTotal, failedTotal)
}

// NopSink discards every notification. It backs tests and deployments that
// run without a real-time transport.
type NopSink struct{}

// Publish implements Sink by doing nothing.
func (NopSink) Publish(context.Context, string, *domain.Message) error {
	publishedTotal.WithLabelValues("nop").Inc()
	return nil
}
