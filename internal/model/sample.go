// Package model defines the data types shared across the collector: the
// Sample time-series point, the raw device status it is normalized from,
// and the discrete attribute-change events used for backfill replay.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Operating states reported by the thermostat.
const (
	StateHeating = "heating"
	StateCooling = "cooling"
	StateIdle    = "idle"
)

// Thermostat modes.
const (
	ModeHeat = "heat"
	ModeCool = "cool"
	ModeAuto = "auto"
	ModeOff  = "off"
)

// Outlet switch values.
const (
	SwitchOn      = "on"
	SwitchOff     = "off"
	SwitchUnknown = "unknown"
)

// CSVTimeLayout is the row timestamp format of the append-only log
// (local time, second resolution).
const CSVTimeLayout = "2006-01-02 15:04:05"

// CSVHeader is the fixed header row of the append-only log.
var CSVHeader = []string{
	"timestamp", "temperature", "outdoor_temp", "heating_setpoint",
	"cooling_setpoint", "operating_state", "mode", "outlet_switch",
}

// Sample is one point in the device time series. Live samples come from the
// poller; synthetic ones from backfill reconstruction. Storage does not
// distinguish the two. Numeric fields are nil when the device did not report
// a value.
type Sample struct {
	Timestamp       int64    `json:"ts"`
	Temp            *float64 `json:"temp"`
	OutdoorTemp     *float64 `json:"outdoorTemp"`
	HeatingSetpoint *float64 `json:"heatingSetpoint"`
	CoolingSetpoint *float64 `json:"coolingSetpoint"`
	OperatingState  string   `json:"operatingState"`
	Mode            string   `json:"mode"`
	OutletSwitch    string   `json:"outletSwitch"`
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time { return time.Unix(s.Timestamp, 0) }

// HasNumeric reports whether any numeric field is present. A sample without
// numerics is still valid (state-only) but is a weaker backfill seed.
func (s Sample) HasNumeric() bool {
	return s.Temp != nil || s.OutdoorTemp != nil || s.HeatingSetpoint != nil || s.CoolingSetpoint != nil
}

// CSVRecord renders the sample as one row of the append-only log. Absent
// optional fields become empty strings.
func (s Sample) CSVRecord() []string {
	return []string{
		time.Unix(s.Timestamp, 0).Format(CSVTimeLayout),
		formatOpt(s.Temp),
		formatOpt(s.OutdoorTemp),
		formatOpt(s.HeatingSetpoint),
		formatOpt(s.CoolingSetpoint),
		s.OperatingState,
		s.Mode,
		s.OutletSwitch,
	}
}

// ParseCSVRecord parses one row of the append-only log back into a Sample.
// Missing state fields collapse to the documented defaults (idle/heat/off),
// matching how rows written before a schema field existed are read back.
func ParseCSVRecord(record []string) (Sample, error) {
	if len(record) < 8 {
		return Sample{}, fmt.Errorf("short record: %d fields", len(record))
	}
	ts, err := time.ParseInLocation(CSVTimeLayout, record[0], time.Local)
	if err != nil {
		return Sample{}, fmt.Errorf("bad timestamp %q: %w", record[0], err)
	}
	s := Sample{
		Timestamp:      ts.Unix(),
		OperatingState: defaultStr(record[5], StateIdle),
		Mode:           defaultStr(record[6], ModeHeat),
		OutletSwitch:   defaultStr(record[7], SwitchOff),
	}
	if s.Temp, err = parseOpt(record[1]); err != nil {
		return Sample{}, err
	}
	if s.OutdoorTemp, err = parseOpt(record[2]); err != nil {
		return Sample{}, err
	}
	if s.HeatingSetpoint, err = parseOpt(record[3]); err != nil {
		return Sample{}, err
	}
	if s.CoolingSetpoint, err = parseOpt(record[4]); err != nil {
		return Sample{}, err
	}
	return s, nil
}

func formatOpt(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseOpt(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad numeric field %q: %w", s, err)
	}
	return &v, nil
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Float is a convenience constructor for optional numeric fields.
func Float(v float64) *float64 { return &v }
