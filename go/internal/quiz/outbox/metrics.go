package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

// MetricPublisher wraps an EventPublisher with Prometheus metrics
type MetricPublisher struct {
	publisher EventPublisher
}

func NewMetricPublisher(publisher EventPublisher) *MetricPublisher {
	return &MetricPublisher{publisher: publisher}
}

func (p *MetricPublisher) Publish(ctx context.Context, event Event) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, event)

	metrics.EventPublishDuration.WithLabelValues(event.EventType).Observe(time.Since(start).Seconds())
	metrics.EventsPublished.WithLabelValues(event.EventType, strconv.FormatBool(err == nil)).Inc()

	return err
}
