package model

import "time"

// RawEvent is one discrete attribute-change notification from the device
// event history. Events arrive unordered and must be sorted by Epoch
// (milliseconds) before replay.
type RawEvent struct {
	DeviceID   string `json:"deviceId,omitempty"`
	Component  string `json:"component,omitempty"`
	Capability string `json:"capability,omitempty"`
	Attribute  string `json:"attribute"`
	Value      any    `json:"value"`
	Unit       string `json:"unit,omitempty"`
	Epoch      int64  `json:"epoch"`
}

// Time returns the event timestamp.
func (e RawEvent) Time() time.Time { return time.UnixMilli(e.Epoch) }

// NumberValue coerces the event value to a float64 when it is numeric.
func (e RawEvent) NumberValue() (float64, bool) {
	switch v := e.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// StringValue coerces the event value to a string when it is one.
func (e RawEvent) StringValue() (string, bool) {
	s, ok := e.Value.(string)
	return s, ok
}
