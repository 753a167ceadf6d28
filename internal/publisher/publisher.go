// Package publisher публикует события из исходящей таблицы в Kafka.
package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/metrics"
	"github.com/mmeshcher/pos-checkout/internal/repository"
)

const (
	defaultInterval = time.Second
	defaultBatch    = 100
)

// Source отдаёт неопубликованные события и отмечает отправленные.
type Source interface {
	FetchPendingEvents(ctx context.Context, limit int) ([]repository.OutboxRecord, error)
	MarkEventSent(ctx context.Context, id int64) error
}

// Writer отправляет сообщения брокеру.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Poller периодически переносит события из исходящей таблицы в брокер.
type Poller struct {
	source   Source
	writer   Writer
	interval time.Duration
	batch    int
	metrics  *metrics.Checkout
	logger   *zap.Logger
}

// New создаёт Poller. interval и batch меньше единицы заменяются значениями по умолчанию.
func New(source Source, writer Writer, interval time.Duration, batch int, m *metrics.Checkout, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		writer:   writer,
		interval: interval,
		batch:    batch,
		metrics:  m,
		logger:   logger,
	}
}

// NewKafkaWriter создаёт writer, который берёт топик из каждого сообщения.
func NewKafkaWriter(brokersCSV string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(ParseBrokers(brokersCSV)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// ParseBrokers разбирает список брокеров через запятую.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Run публикует события до отмены ctx.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("outbox publish failed", zap.Error(err))
			}
		}
	}
}

// PublishBatch публикует одну порцию событий по порядку и возвращает число отправленных.
// На первой ошибке порция прерывается, чтобы не нарушить порядок событий.
func (p *Poller) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.source.FetchPendingEvents(ctx, p.batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}

	sent := 0
	defer func() { p.metrics.ObservePublished(sent) }()

	for _, rec := range records {
		msg := kafka.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Time:  rec.CreatedAt.UTC(),
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(rec.EventID)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			return sent, fmt.Errorf("write event %s: %w", rec.EventID, err)
		}
		if err := p.source.MarkEventSent(ctx, rec.ID); err != nil {
			return sent, fmt.Errorf("mark event %s sent: %w", rec.EventID, err)
		}
		sent++
	}

	if sent > 0 {
		p.logger.Debug("outbox events published", zap.Int("count", sent))
	}
	return sent, nil
}
