package smartthings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/metrics"
	"github.com/jonguttman/MasterStat/internal/model"
)

// DefaultAPIBase is the SmartThings cloud REST endpoint.
const DefaultAPIBase = "https://api.smartthings.com/v1"

// Client talks to the SmartThings device API for one thermostat and its
// paired outlet. All calls share a single refresh-once-on-401 policy.
type Client struct {
	base         string
	httpc        *http.Client
	tokens       TokenSource
	thermostatID string
	outletID     string
	logger       *zap.Logger
}

// NewClient builds a client. base defaults to DefaultAPIBase when empty.
func NewClient(base string, timeout time.Duration, tokens TokenSource, thermostatID, outletID string, logger *zap.Logger) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		base:         base,
		httpc:        &http.Client{Timeout: timeout},
		tokens:       tokens,
		thermostatID: thermostatID,
		outletID:     outletID,
		logger:       logger,
	}
}

// get performs an authenticated GET and decodes the JSON body into out.
// On a 401 it refreshes the token once and retries the request once; a
// second 401, or a failed refresh, returns ErrUnauthorized.
func (c *Client) get(ctx context.Context, endpoint, path string, query map[string]string, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()

		resp, err := c.httpc.Do(req)
		if err != nil {
			metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("smartthings: %s: %w", path, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusUnauthorized {
			if attempt > 0 {
				return ErrUnauthorized
			}
			c.logger.Warn("API returned 401, refreshing token", zap.String("path", path))
			if err := c.tokens.Refresh(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrUnauthorized, err)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("smartthings: %s: status %d", path, resp.StatusCode)
		}
		if readErr != nil {
			return fmt.Errorf("smartthings: %s: read body: %w", path, readErr)
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("smartthings: %s: decode: %w", path, err)
			}
		}
		return nil
	}
}

// deviceStatus mirrors the /devices/{id}/status response shape:
// components.main.<capability>.<attribute>.{value,unit}.
type deviceStatus struct {
	Components map[string]map[string]map[string]attrValue `json:"components"`
}

type attrValue struct {
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit"`
}

func (d *deviceStatus) attr(capability, attribute string) (attrValue, bool) {
	main, ok := d.Components["main"]
	if !ok {
		return attrValue{}, false
	}
	attrs, ok := main[capability]
	if !ok {
		return attrValue{}, false
	}
	av, ok := attrs[attribute]
	if !ok || len(av.Value) == 0 || string(av.Value) == "null" {
		return attrValue{}, false
	}
	return av, true
}

func (d *deviceStatus) number(capability, attribute string) *float64 {
	av, ok := d.attr(capability, attribute)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(av.Value, &f); err != nil {
		return nil
	}
	return &f
}

func (d *deviceStatus) str(capability, attribute, def string) string {
	av, ok := d.attr(capability, attribute)
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(av.Value, &s); err != nil {
		return def
	}
	return s
}

func (d *deviceStatus) unit(capability, attribute, def string) string {
	av, ok := d.attr(capability, attribute)
	if !ok || av.Unit == "" {
		return def
	}
	return av.Unit
}

// Validate performs a live status read against the thermostat to prove the
// device ID and credentials before the service starts. A 401 here is fatal
// to startup.
func (c *Client) Validate(ctx context.Context) error {
	var ds deviceStatus
	if err := c.get(ctx, "status", "/devices/"+c.thermostatID+"/status", nil, &ds); err != nil {
		return fmt.Errorf("validate thermostat %s: %w", c.thermostatID, err)
	}
	if _, ok := ds.attr("temperatureMeasurement", "temperature"); !ok {
		c.logger.Warn("thermostat reports no temperature attribute", zap.String("device", c.thermostatID))
	}
	return nil
}

// Status fetches the thermostat and outlet in one pass and normalizes them
// into a Status. A thermostat failure fails the call; an outlet failure is
// tolerated and leaves the switch state unknown.
func (c *Client) Status(ctx context.Context) (*model.Status, error) {
	var ds deviceStatus
	if err := c.get(ctx, "status", "/devices/"+c.thermostatID+"/status", nil, &ds); err != nil {
		return nil, err
	}

	st := &model.Status{
		Temperature:     ds.number("temperatureMeasurement", "temperature"),
		TempUnit:        ds.unit("temperatureMeasurement", "temperature", "F"),
		Mode:            ds.str("thermostatMode", "thermostatMode", model.ModeOff),
		HeatingSetpoint: ds.number("thermostatHeatingSetpoint", "heatingSetpoint"),
		CoolingSetpoint: ds.number("thermostatCoolingSetpoint", "coolingSetpoint"),
		OperatingState:  ds.str("thermostatOperatingState", "thermostatOperatingState", model.StateIdle),
		StatusText:      ds.str("benchventure06596.statustext", "statusText", ""),
		PrimaryTemp:     ds.number("benchventure06596.settemperature", "temperature"),
		PrimaryTempUnit: ds.unit("benchventure06596.settemperature", "temperature", "F"),
		SecondaryTemp:   ds.number("benchventure06596.settemperature2", "temperature"),
		OutdoorTemp:     ds.number("benchventure06596.outdoortemperature", "outdoorTemperature"),
		OutletSwitch:    model.SwitchUnknown,
	}
	if v := ds.number("benchventure06596.energytracking", "dailyRuntime"); v != nil {
		st.DailyRuntime = *v
	}
	if v := ds.number("benchventure06596.energydetails", "heatingRuntime"); v != nil {
		st.HeatingRuntime = *v
	}
	if v := ds.number("benchventure06596.energydetails", "coolingRuntime"); v != nil {
		st.CoolingRuntime = *v
	}
	if v := ds.number("benchventure06596.energydetails", "dailyCycles"); v != nil {
		st.DailyCycles = *v
	}
	if v := ds.number("benchventure06596.energydetails", "efficiency"); v != nil {
		st.Efficiency = *v
	}
	st.RuntimeSummary = ds.str("benchventure06596.energysummary", "runtimeSummary", "")
	st.CostSummary = ds.str("benchventure06596.energysummary", "costSummary", "")
	st.EfficiencySummary = ds.str("benchventure06596.energysummary", "efficiencySummary", "")

	if c.outletID != "" {
		var os deviceStatus
		if err := c.get(ctx, "status", "/devices/"+c.outletID+"/status", nil, &os); err != nil {
			c.logger.Warn("outlet status unavailable", zap.String("device", c.outletID), zap.Error(err))
		} else {
			st.OutletSwitch = os.str("switch", "switch", model.SwitchUnknown)
		}
	}
	return st, nil
}
