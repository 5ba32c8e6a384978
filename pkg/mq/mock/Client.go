// Package mock provides test doubles for the mq package.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-db/pkg/mq"
)

// MockClient records calls and returns configurable results.
type MockClient struct {
	mu sync.Mutex

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc  func(ctx context.Context, data []byte) error
	PushError error
	PushCalls [][]byte

	UnsafePushError error
	UnsafePushCalls [][]byte

	ConsumeChannel chan amqp.Delivery
	ConsumeError   error

	CloseError error
	CloseCalls int
}

// NewMockClient creates a MockClient that succeeds on every call.
func NewMockClient() *MockClient {
	return &MockClient{ConsumeChannel: make(chan amqp.Delivery)}
}

// Push implements mq.Publisher.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.PushCalls = append(m.PushCalls, append([]byte(nil), data...))
	fn, err := m.PushFunc, m.PushError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return err
}

// UnsafePush implements mq.ClientInterface.
func (m *MockClient) UnsafePush(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnsafePushCalls = append(m.UnsafePushCalls, append([]byte(nil), data...))
	return m.UnsafePushError
}

// Consume implements mq.ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConsumeChannel, m.ConsumeError
}

// SetConsume replaces what Consume returns while a consumer may be calling it.
func (m *MockClient) SetConsume(ch chan amqp.Delivery, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsumeChannel = ch
	m.ConsumeError = err
}

// Close implements mq.Publisher.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return m.CloseError
}

// Pushed returns a copy of every payload passed to Push.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.PushCalls...)
}

// Reset clears the recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PushCalls = nil
	m.UnsafePushCalls = nil
	m.CloseCalls = 0
}

// Ensure MockClient implements mq.ClientInterface.
var _ mq.ClientInterface = (*MockClient)(nil)
