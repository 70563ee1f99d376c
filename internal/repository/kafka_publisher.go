package repository

import (
	"context"
	"fmt"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	pkgkafka "BrentShift/pkg/kafka"
)

// ChangePointEvent is the message published for every detected change point.
type ChangePointEvent struct {
	AnalysisID  string              `json:"analysis_id"`
	Series      string              `json:"series"`
	ChangePoint models.ChangePoint  `json:"change_point"`
	Event       *models.EventRecord `json:"event"`
	Confidence  float64             `json:"confidence"`
	Status      string              `json:"status"`
	Converged   bool                `json:"converged"`
}

type publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher announces completed analyses, one message per change point keyed by series.
type KafkaPublisher struct {
	producer publisher
	topic    string
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishResult(ctx context.Context, r *models.AnalysisResult) error {
	msgs := make([]pkgkafka.Message, 0, len(r.Associations))
	for _, a := range r.Associations {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(r.Series),
			Value: ChangePointEvent{
				AnalysisID:  r.ID,
				Series:      r.Series,
				ChangePoint: a.ChangePoint,
				Event:       a.Event,
				Confidence:  a.Confidence,
				Status:      a.Status,
				Converged:   r.Converged,
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %s: %w", r.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishResult(context.Context, *models.AnalysisResult) error { return nil }

func (NoopPublisher) Close() error { return nil }
