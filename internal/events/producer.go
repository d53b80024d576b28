package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

// Producer streams scan outcomes for off-kiosk consumers (capacity
// dashboards, fraud checks). Publishing is best-effort from the scan
// cycle's point of view.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishScan streams one audit record, keyed by ticket code so scans of
// the same ticket stay ordered within a partition.
func (p *Producer) PublishScan(record models.ScanRecord) error {
	msgBytes, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(record.Code),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
