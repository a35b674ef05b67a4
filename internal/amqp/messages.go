package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// RefreshRequestMessage asks the worker to recompute and persist a forecast.
// RequestedAt orders competing requests: the newest one wins.
type RefreshRequestMessage struct {
	Horizon     int       `json:"horizon"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRefreshRequestMessage creates a request stamped with the current time
func NewRefreshRequestMessage(horizon int) *RefreshRequestMessage {
	return &RefreshRequestMessage{
		Horizon:     horizon,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestMessageFromJSON creates a message from JSON bytes
func RefreshRequestMessageFromJSON(data []byte) (*RefreshRequestMessage, error) {
	var msg RefreshRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Horizon <= 0 {
		return nil, fmt.Errorf("refresh request without horizon")
	}
	return &msg, nil
}

// ForecastComputedMessage announces a persisted forecast snapshot.
type ForecastComputedMessage struct {
	Horizon      int       `json:"horizon"`
	Generation   uint64    `json:"generation"`
	RequestedAt  time.Time `json:"requested_at"`
	ComputedAt   time.Time `json:"computed_at"`
	Jurisdiction string    `json:"jurisdiction"`
	DataErrors   int       `json:"data_errors"`
}

// ToJSON converts the message to JSON bytes
func (m *ForecastComputedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
