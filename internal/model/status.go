package model

import "time"

// Status is the normalized current state of the monitored devices, as served
// to dashboards. It carries the presentation-only fields (units, runtime and
// cost summaries) that are not retained in the history log.
type Status struct {
	Temperature     *float64 `json:"temperature"`
	TempUnit        string   `json:"tempUnit"`
	Mode            string   `json:"mode"`
	HeatingSetpoint *float64 `json:"heatingSetpoint"`
	CoolingSetpoint *float64 `json:"coolingSetpoint"`
	OperatingState  string   `json:"operatingState"`
	StatusText      string   `json:"statusText,omitempty"`

	PrimaryTemp     *float64 `json:"primaryTemp"`
	PrimaryTempUnit string   `json:"primaryTempUnit"`
	SecondaryTemp   *float64 `json:"secondaryTemp"`
	OutdoorTemp     *float64 `json:"outdoorTemp"`

	DailyRuntime   float64 `json:"dailyRuntime"`
	HeatingRuntime float64 `json:"heatingRuntime"`
	CoolingRuntime float64 `json:"coolingRuntime"`
	DailyCycles    float64 `json:"dailyCycles"`
	Efficiency     float64 `json:"efficiency"`

	RuntimeSummary    string `json:"runtimeSummary,omitempty"`
	CostSummary       string `json:"costSummary,omitempty"`
	EfficiencySummary string `json:"efficiencySummary,omitempty"`

	OutletSwitch string `json:"outletSwitch"`
}

// SampleFromStatus normalizes a Status into the Sample recorded in history.
// The standard temperature reading is preferred over the custom primary
// sensor; state fields fall back to the documented defaults.
func SampleFromStatus(st *Status, at time.Time) Sample {
	temp := st.Temperature
	if temp == nil {
		temp = st.PrimaryTemp
	}
	return Sample{
		Timestamp:       at.Unix(),
		Temp:            temp,
		OutdoorTemp:     st.OutdoorTemp,
		HeatingSetpoint: st.HeatingSetpoint,
		CoolingSetpoint: st.CoolingSetpoint,
		OperatingState:  defaultStr(st.OperatingState, StateIdle),
		Mode:            defaultStr(st.Mode, ModeOff),
		OutletSwitch:    defaultStr(st.OutletSwitch, SwitchUnknown),
	}
}
