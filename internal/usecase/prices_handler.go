package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	pkgkafka "BrentShift/pkg/kafka"
	"BrentShift/pkg/util"
)

// PriceMessage is one daily price as published on the prices topic.
type PriceMessage struct {
	Series string  `json:"series"`
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
}

// KafkaPricesHandler appends prices received on Kafka to the price store.
type KafkaPricesHandler struct {
	topic         string
	defaultSeries string
	store         domrepo.PriceStore
	metrics       domrepo.Metrics
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)

func NewKafkaPricesHandler(topic, defaultSeries string, store domrepo.PriceStore, metrics domrepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, defaultSeries: defaultSeries, store: store, metrics: metrics}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

// Handle accepts a single PriceMessage or an array of them. Undecodable or invalid payloads
// are permanent failures and go straight to the dead-letter topic.
func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	msgs, err := decodePrices(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}

	bySeries := make(map[string][]models.PricePoint)
	for i, m := range msgs {
		series := m.Series
		if series == "" {
			series = h.defaultSeries
		}
		d, err := util.ParseDate(m.Date)
		if err != nil {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("%w: item %d: %v", pkgkafka.ErrPermanent, i, err)
		}
		if !(m.Price > 0) || math.IsInf(m.Price, 0) {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("%w: item %d: price %v is not positive", pkgkafka.ErrPermanent, i, m.Price)
		}
		bySeries[series] = append(bySeries[series], models.PricePoint{Date: d, Price: m.Price})
	}

	for series, points := range bySeries {
		start := time.Now()
		err := h.store.StorePrices(ctx, series, points)
		h.metrics.RecordLatency("store_prices", time.Since(start).Seconds())
		if err != nil {
			h.metrics.RecordError("consumer_store")
			return fmt.Errorf("store prices %s: %w", series, err)
		}
		h.metrics.RecordIngested(series, len(points))
	}
	return nil
}

func decodePrices(b []byte) ([]PriceMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var many []PriceMessage
		if err := json.Unmarshal(b, &many); err != nil {
			return nil, err
		}
		if len(many) == 0 {
			return nil, fmt.Errorf("empty batch")
		}
		return many, nil
	}
	var one PriceMessage
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, err
	}
	return []PriceMessage{one}, nil
}
