package smartthings

import (
	"context"
	"strconv"
	"time"

	"github.com/jonguttman/MasterStat/internal/model"
)

// historyLimit caps a single window query. Windows are sized so that a
// device emitting one event per attribute change stays well under this.
const historyLimit = 200

// Events returns the device event stream for (after, before), oldest first,
// capped at historyLimit entries. The caller treats a failed window as
// empty, so errors carry context but no retry logic.
func (c *Client) Events(ctx context.Context, deviceID string, after, before time.Time) ([]model.RawEvent, error) {
	var resp struct {
		Items []struct {
			DeviceID   string `json:"deviceId"`
			Component  string `json:"component"`
			Capability string `json:"capability"`
			Attribute  string `json:"attribute"`
			Value      any    `json:"value"`
			Unit       string `json:"unit"`
			Epoch      int64  `json:"epoch"`
		} `json:"items"`
	}
	query := map[string]string{
		"deviceId":    deviceID,
		"limit":       strconv.Itoa(historyLimit),
		"oldestFirst": "true",
		"after":       strconv.FormatInt(after.UnixMilli(), 10),
		"before":      strconv.FormatInt(before.UnixMilli(), 10),
	}
	if err := c.get(ctx, "history", "/history/devices", query, &resp); err != nil {
		return nil, err
	}

	events := make([]model.RawEvent, 0, len(resp.Items))
	for _, it := range resp.Items {
		events = append(events, model.RawEvent{
			DeviceID:   it.DeviceID,
			Component:  it.Component,
			Capability: it.Capability,
			Attribute:  it.Attribute,
			Value:      it.Value,
			Unit:       it.Unit,
			Epoch:      it.Epoch,
		})
	}
	return events, nil
}
