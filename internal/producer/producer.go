// Package producer publishes synthetic weather readings to RabbitMQ, one per
// device per tick of a simulated clock.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/weather-db/pkg/generator"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq"
)

// ReadingMessage is the queue payload of a single reading.
type ReadingMessage struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Value     int       `json:"value"`
}

// Device is a sensor the producer emits readings for.
type Device struct {
	ID   string
	Type string
}

// Config holds the configuration for a Producer.
type Config struct {
	Client    mq.Publisher
	Generator *generator.Generator
	Devices   []Device
	// Start is the timestamp of the first reading.
	Start time.Time
	// Step advances the simulated clock after every tick (defaults to one hour).
	Step    time.Duration
	Metrics *metrics.ProducerMetrics // Optional metrics
}

// Producer emits readings on a simulated clock, so a short run can cover days of data.
// It is not safe for concurrent use.
type Producer struct {
	client    mq.Publisher
	generator *generator.Generator
	devices   []Device
	clock     time.Time
	step      time.Duration
	metrics   *metrics.ProducerMetrics
}

// NewProducer validates cfg and creates a Producer.
func NewProducer(cfg *Config) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("producer config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if len(cfg.Devices) == 0 {
		return nil, errors.New("at least one device is required")
	}
	for _, d := range cfg.Devices {
		if _, ok := generator.Distributions[strings.ToLower(d.Type)]; !ok {
			return nil, fmt.Errorf("device %s has unknown sensor type %q", d.ID, d.Type)
		}
	}

	step := cfg.Step
	if step <= 0 {
		step = time.Hour
	}

	return &Producer{
		client:    cfg.Client,
		generator: cfg.Generator,
		devices:   cfg.Devices,
		clock:     cfg.Start.UTC(),
		step:      step,
		metrics:   cfg.Metrics,
	}, nil
}

// Clock returns the timestamp the next tick will use.
func (p *Producer) Clock() time.Time {
	return p.clock
}

// Tick publishes one reading per device at the current simulated time and
// advances the clock. The clock advances even when a push fails, so a broken
// broker does not stall the timeline.
func (p *Producer) Tick(ctx context.Context) error {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.GenerationDuration)
		defer timer.ObserveDuration()
	}

	ts := p.clock
	p.clock = p.clock.Add(p.step)
	if p.metrics != nil {
		p.metrics.SimulatedClock.Set(float64(p.clock.Unix()))
	}

	var errs []error
	for _, d := range p.devices {
		if err := p.publish(ctx, d, ts); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) publish(ctx context.Context, d Device, ts time.Time) error {
	value := int(p.generator.Normal(generator.Distributions[strings.ToLower(d.Type)]))

	message, err := json.Marshal(ReadingMessage{DeviceID: d.ID, Value: value, Timestamp: ts})
	if err != nil {
		p.fail("marshal_error")
		return err
	}

	if err := p.client.Push(ctx, message); err != nil {
		p.fail("push_error")
		return err
	}

	if p.metrics != nil {
		p.metrics.MessagesGenerated.Inc()
	}
	return nil
}

func (p *Producer) fail(reason string) {
	if p.metrics != nil {
		p.metrics.GenerationFailures.WithLabelValues(reason).Inc()
	}
}
