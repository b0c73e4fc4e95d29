package model

import "time"

// Core telematics domain types shared across decode, analysis, and alerting.

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Position is the GPS portion of a telemetry sample. Valid is false when the
// receiver reported no fix; the coordinate fields then carry no meaning and
// must not be read as (0,0).
type Position struct {
	Valid      bool    `json:"valid"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AltitudeM  float64 `json:"altitudeM"`
	HeadingDeg float64 `json:"headingDeg"`
	SpeedKmh   float64 `json:"speedKmh"`
	Satellites int     `json:"satellites"`
}

// Engine holds drivetrain metrics decoded from OBD-II or CAN frames.
// Pointer fields distinguish "not reported in this sample" from zero.
type Engine struct {
	RPM            *float64 `json:"rpm,omitempty"`
	SpeedKmh       *float64 `json:"speedKmh,omitempty"`
	CoolantTempC   *float64 `json:"coolantTempC,omitempty"`
	OilTempC       *float64 `json:"oilTempC,omitempty"`
	ThrottlePct    *float64 `json:"throttlePct,omitempty"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	FuelPct        *float64 `json:"fuelPct,omitempty"`
}

// TelemetrySample is one normalized reading for one vehicle. Immutable once
// constructed; produced once per ingested frame or sentence.
type TelemetrySample struct {
	VehicleID string    `json:"vehicleId"`
	Timestamp time.Time `json:"timestamp"`
	Position  Position  `json:"position"`
	Engine    Engine    `json:"engine"`
	DTCCodes  []string  `json:"dtcCodes,omitempty"`
}

// Speed returns the best available speed reading: wheel speed when the ECU
// reported one, GPS ground speed otherwise.
func (s *TelemetrySample) Speed() (float64, bool) {
	if s.Engine.SpeedKmh != nil {
		return *s.Engine.SpeedKmh, true
	}
	if s.Position.Valid {
		return s.Position.SpeedKmh, true
	}
	return 0, false
}

// DTCCategory is the system a trouble code belongs to, from its first letter.
type DTCCategory string

const (
	CategoryPowertrain DTCCategory = "powertrain"
	CategoryChassis    DTCCategory = "chassis"
	CategoryBody       DTCCategory = "body"
	CategoryNetwork    DTCCategory = "network"
	CategoryUnknown    DTCCategory = "unknown"
)

// DTCSeverity ranks trouble codes: Critical > High > Medium > Low > Unknown.
type DTCSeverity string

const (
	SeverityCritical DTCSeverity = "critical"
	SeverityHigh     DTCSeverity = "high"
	SeverityMedium   DTCSeverity = "medium"
	SeverityLow      DTCSeverity = "low"
	SeverityUnknown  DTCSeverity = "unknown"
)

// Rank returns a sortable priority for a severity; higher is worse.
func (s DTCSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DTCCode is one entry in the static trouble-code knowledge base.
type DTCCode struct {
	Code        string      `json:"code"`
	Category    DTCCategory `json:"category"`
	Description string      `json:"description"`
	Severity    DTCSeverity `json:"severity"`
	System      string      `json:"system"`
	Action      string      `json:"action"`
	CostMinUSD  int         `json:"costMinUsd,omitempty"`
	CostMaxUSD  int         `json:"costMaxUsd,omitempty"`
}

// Diagnosis is the analyzer's verdict for one reported code.
type Diagnosis struct {
	Code        string      `json:"code"`
	Known       bool        `json:"known"`
	Category    DTCCategory `json:"category"`
	Description string      `json:"description"`
	Severity    DTCSeverity `json:"severity"`
	System      string      `json:"system"`
	Action      string      `json:"action"`
}

// MaintenanceSuggestion is a repair recommendation derived from diagnoses.
type MaintenanceSuggestion struct {
	Type        string      `json:"type"`
	Priority    DTCSeverity `json:"priority"`
	Description string      `json:"description"`
	CostMinUSD  int         `json:"costMinUsd"`
	CostMaxUSD  int         `json:"costMaxUsd"`
}

// FleetHealth is the analyzer's rollup across a set of vehicles.
type FleetHealth struct {
	Vehicles      int         `json:"vehicles"`
	WithFaults    int         `json:"withFaults"`
	WorstSeverity DTCSeverity `json:"worstSeverity"`
	CriticalCodes int         `json:"criticalCodes"`
}

// GeofenceShape selects the containment test used for a fence.
type GeofenceShape string

const (
	ShapeCircle  GeofenceShape = "circle"
	ShapePolygon GeofenceShape = "polygon"
)

// Geofence is a virtual boundary. Circle fences use Center+RadiusM; polygon
// fences use Vertices (ordered, at least three). Never mutated during a check.
type Geofence struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Shape    GeofenceShape `json:"shape"`
	Center   GeoPoint      `json:"center,omitempty" yaml:"center"`
	RadiusM  float64       `json:"radiusM,omitempty" yaml:"radiusM"`
	Vertices []GeoPoint    `json:"vertices,omitempty" yaml:"vertices"`
	Active   bool          `json:"active"`
}

// AlertKind identifies a rule family.
type AlertKind string

const (
	AlertSpeeding    AlertKind = "speeding"
	AlertOverheat    AlertKind = "overheat"
	AlertOverRev     AlertKind = "over_rev"
	AlertLowFuel     AlertKind = "low_fuel"
	AlertLowBattery  AlertKind = "low_battery"
	AlertHarshBrake  AlertKind = "harsh_braking"
	AlertHarshAccel  AlertKind = "harsh_acceleration"
	AlertGeofenceIn  AlertKind = "geofence_entry"
	AlertGeofenceOut AlertKind = "geofence_exit"
	AlertDTCDetected AlertKind = "dtc_detected"
)

// AlertSeverity is the level an alert fires at.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// AlertEvent is one fired alert. Acknowledged is mutated by the API layer,
// never by the engine.
type AlertEvent struct {
	ID           string        `json:"id"`
	VehicleID    string        `json:"vehicleId"`
	Kind         AlertKind     `json:"kind"`
	Severity     AlertSeverity `json:"severity"`
	Value        float64       `json:"value"`
	Threshold    float64       `json:"threshold"`
	Message      string        `json:"message"`
	Timestamp    time.Time     `json:"timestamp"`
	Acknowledged bool          `json:"acknowledged"`
}

// DriverScore is the rolling behavior score for one driver, clamped to [0,100].
type DriverScore struct {
	DriverID       string    `json:"driverId"`
	Score          float64   `json:"score"`
	HarshBrakes    int       `json:"harshBrakes"`
	HarshAccels    int       `json:"harshAccels"`
	SpeedingEvents int       `json:"speedingEvents"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Vehicle is reference data supplied by fleet configuration.
type Vehicle struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name"`
	Plate    string `json:"plate,omitempty" yaml:"plate"`
	DriverID string `json:"driverId,omitempty" yaml:"driverId"`
}
