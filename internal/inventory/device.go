package inventory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the binary reachability classification of a device.
//
// Status is persisted and serialised as an integer (1 = up, 0 = down) so the
// browser client can keep comparing against the numeric values it already
// understands.
type Status int

const (
	// StatusDown indicates the last probe got no reply.
	StatusDown Status = 0

	// StatusUp indicates the last probe got a reply.
	StatusUp Status = 1
)

// StatusFromReachable maps a probe outcome to a Status.
func StatusFromReachable(reachable bool) Status {
	if reachable {
		return StatusUp
	}
	return StatusDown
}

// String returns "up" or "down".
func (s Status) String() string {
	if s == StatusUp {
		return "up"
	}
	return "down"
}

// Valid reports whether s is one of the two defined values.
func (s Status) Valid() bool {
	return s == StatusUp || s == StatusDown
}

// UnmarshalJSON accepts 0/1 and the strings "up"/"down".
func (s *Status) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		st := Status(n)
		if !st.Valid() {
			return fmt.Errorf("invalid status %d: must be 0 or 1", n)
		}
		*s = st
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("invalid status %s", string(data))
	}
	switch str {
	case "up":
		*s = StatusUp
	case "down":
		*s = StatusDown
	default:
		return fmt.Errorf("invalid status %q: must be \"up\" or \"down\"", str)
	}
	return nil
}

// DeviceType is the category of a device as stored in the type column.
type DeviceType string

const (
	TypeRouter  DeviceType = "Roteador"
	TypePrinter DeviceType = "Impressora"
	TypeBox     DeviceType = "Caixa"
)

// Device is a row of the devices table.
//
// Status is the only field the reconciler mutates; the rest is descriptive
// metadata owned by administrative tooling.
type Device struct {
	ID      int64      `json:"id"`
	Address string     `json:"ip"`
	Name    string     `json:"name"`
	Type    DeviceType `json:"type"`
	Owner   string     `json:"user"`
	Sector  string     `json:"sector"`
	Status  Status     `json:"status"`
}

// StatusChangeEvent announces that a device's persisted status changed.
//
// Events are ephemeral: they exist only on the notification channel and are
// never stored.
type StatusChangeEvent struct {
	DeviceID   int64     `json:"id"`
	Status     Status    `json:"status"`
	Previous   *Status   `json:"previous,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewStatusChangeEvent builds an event for a transition from previous to next.
func NewStatusChangeEvent(id int64, previous, next Status, at time.Time) StatusChangeEvent {
	prev := previous
	return StatusChangeEvent{
		DeviceID:   id,
		Status:     next,
		Previous:   &prev,
		ObservedAt: at,
	}
}
