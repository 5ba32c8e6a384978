package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/pkg/mq"
)

// Message is the payload published for every report.
type Message struct {
	GeneratedAt time.Time `json:"generated_at"`
	Date        string    `json:"date"`
	ReportID    string    `json:"report_id"`
	DeviceID    string    `json:"device_id"`
	MinValue    float64   `json:"min_value"`
	MaxValue    float64   `json:"max_value"`
	AvgValue    float64   `json:"avg_value"`
}

// QueueNotifier publishes reports to a message queue.
type QueueNotifier struct {
	client mq.Publisher
	now    func() time.Time
}

// NewQueueNotifier creates a notifier that pushes JSON messages through client.
func NewQueueNotifier(client mq.Publisher) (*QueueNotifier, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	return &QueueNotifier{client: client, now: time.Now}, nil
}

// Notify implements Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, r models.DailyReport) error {
	body, err := json.Marshal(Message{
		GeneratedAt: n.now().UTC(),
		Date:        r.Date.Format(time.DateOnly),
		ReportID:    r.ID,
		DeviceID:    r.DeviceID,
		MinValue:    r.MinValue,
		MaxValue:    r.MaxValue,
		AvgValue:    r.AvgValue,
	})
	if err != nil {
		return fmt.Errorf("failed to encode report message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := n.client.Push(ctx, body); err != nil {
		return fmt.Errorf("failed to push report message: %w", err)
	}
	return nil
}
