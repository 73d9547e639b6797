// Package msg defines the interface for different message brokers usage events are published to.
package msg

import (
	"time"
)

// UsageEvent records one served request for accounting. The API key itself is never published, only a fingerprint of
// it.
type UsageEvent struct {
	RequestID string        `json:"requestId"`
	Key       string        `json:"key,omitempty"` // key fingerprint
	Method    string        `json:"method"`
	Route     string        `json:"route"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
	Time      time.Time     `json:"time"`
}

// Broker publishes usage events.
type Broker interface {
	Setup() error
	PublishUsage(e UsageEvent) error
	Close() error
}

// Nop is the Broker used when none is configured. It discards every event.
type Nop struct{}

var _ Broker = Nop{}

// Setup does nothing.
func (Nop) Setup() error { return nil }

// PublishUsage discards e.
func (Nop) PublishUsage(UsageEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
