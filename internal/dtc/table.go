package dtc

import "fleettrack/internal/model"

// Recommended actions per severity tier.
const (
	actionCritical = "Stop the vehicle immediately. Do not drive; tow to the nearest service center."
	actionHigh     = "Schedule service as soon as possible. Avoid long trips until repaired."
	actionMedium   = "Service recommended within 1-2 weeks. Monitor closely."
	actionLow      = "Minor issue. Address during the next routine service."
	actionUnknown  = "Unrecognized code. Consult the manufacturer service documentation."
)

func actionFor(s model.DTCSeverity) string {
	switch s {
	case model.SeverityCritical:
		return actionCritical
	case model.SeverityHigh:
		return actionHigh
	case model.SeverityMedium:
		return actionMedium
	case model.SeverityLow:
		return actionLow
	}
	return actionUnknown
}

// entry is the compact form the static table is written in; Table expands it.
type entry struct {
	desc    string
	sev     model.DTCSeverity
	system  string
	costMin int
	costMax int
}

// SAE J2012 trouble codes the fleet sees in practice. Loaded once at process
// start and shared read-only by every analysis.
var table = map[string]entry{
	// Powertrain: fuel and air metering
	"P0100": {"Mass Air Flow (MAF) Circuit Malfunction", model.SeverityHigh, "fuel", 100, 300},
	"P0101": {"MAF Sensor Range/Performance", model.SeverityMedium, "fuel", 100, 300},
	"P0102": {"MAF Sensor Circuit Low Input", model.SeverityMedium, "fuel", 100, 300},
	"P0110": {"Intake Air Temperature Sensor Malfunction", model.SeverityMedium, "fuel", 100, 300},
	"P0120": {"Throttle Position Sensor Malfunction", model.SeverityHigh, "fuel", 100, 300},
	"P0130": {"O2 Sensor Circuit Malfunction (Bank 1)", model.SeverityMedium, "emissions", 100, 400},
	"P0171": {"System Too Lean (Bank 1)", model.SeverityMedium, "fuel", 100, 300},
	"P0172": {"System Too Rich (Bank 1)", model.SeverityMedium, "fuel", 100, 300},

	// Powertrain: ignition
	"P0300": {"Random/Multiple Cylinder Misfire Detected", model.SeverityHigh, "ignition", 100, 300},
	"P0301": {"Cylinder 1 Misfire Detected", model.SeverityHigh, "ignition", 100, 300},
	"P0302": {"Cylinder 2 Misfire Detected", model.SeverityHigh, "ignition", 100, 300},
	"P0303": {"Cylinder 3 Misfire Detected", model.SeverityHigh, "ignition", 100, 300},
	"P0304": {"Cylinder 4 Misfire Detected", model.SeverityHigh, "ignition", 100, 300},
	"P0335": {"Crankshaft Position Sensor Malfunction", model.SeverityCritical, "ignition", 200, 800},
	"P0340": {"Camshaft Position Sensor Malfunction", model.SeverityCritical, "ignition", 200, 800},

	// Powertrain: emission controls
	"P0400": {"EGR Flow Malfunction", model.SeverityMedium, "emissions", 100, 400},
	"P0420": {"Catalyst Efficiency Below Threshold (Bank 1)", model.SeverityMedium, "emissions", 100, 400},
	"P0440": {"EVAP System Malfunction", model.SeverityLow, "emissions", 100, 400},
	"P0442": {"EVAP System Small Leak Detected", model.SeverityLow, "emissions", 100, 400},
	"P0455": {"EVAP System Large Leak Detected", model.SeverityMedium, "emissions", 100, 400},

	// Powertrain: speed and idle control
	"P0500": {"Vehicle Speed Sensor Malfunction", model.SeverityHigh, "drivetrain", 100, 300},
	"P0505": {"Idle Air Control System Malfunction", model.SeverityMedium, "fuel", 100, 300},

	// Powertrain: cooling
	"P0115": {"Engine Coolant Temperature Sensor Malfunction", model.SeverityHigh, "cooling", 100, 300},
	"P0116": {"Coolant Temp Sensor Range/Performance", model.SeverityMedium, "cooling", 100, 300},
	"P0117": {"Coolant Temp Sensor Circuit Low", model.SeverityMedium, "cooling", 100, 300},
	"P0125": {"Insufficient Coolant Temperature for Fuel Control", model.SeverityMedium, "cooling", 100, 300},
	"P0128": {"Coolant Thermostat Below Operating Temperature", model.SeverityLow, "cooling", 100, 300},

	// Powertrain: transmission
	"P0700": {"Transmission Control System Malfunction", model.SeverityHigh, "transmission", 150, 500},
	"P0715": {"Input/Turbine Speed Sensor Malfunction", model.SeverityHigh, "transmission", 150, 500},
	"P0730": {"Incorrect Gear Ratio", model.SeverityHigh, "transmission", 150, 500},

	// Chassis
	"C0035": {"Left Front Wheel Speed Sensor Circuit", model.SeverityHigh, "abs", 200, 800},
	"C0040": {"Right Front Wheel Speed Sensor Circuit", model.SeverityHigh, "abs", 200, 800},
	"C0050": {"Steering Assist Control Module", model.SeverityCritical, "steering", 200, 800},

	// Body
	"B0001": {"Driver Frontal Stage 1 Deployment Control", model.SeverityCritical, "airbag", 200, 800},
	"B0028": {"Airbag Warning Lamp Circuit", model.SeverityHigh, "airbag", 200, 800},
	"B0100": {"Electronic Frontal Sensor 1", model.SeverityCritical, "airbag", 200, 800},

	// Network
	"U0001": {"High Speed CAN Communication Bus", model.SeverityHigh, "network", 100, 500},
	"U0100": {"Lost Communication with ECM/PCM", model.SeverityCritical, "network", 100, 500},
	"U0121": {"Lost Communication with ABS", model.SeverityCritical, "network", 100, 500},
	"U0140": {"Lost Communication with BCM", model.SeverityHigh, "network", 100, 500},
}

func categoryFor(code string) model.DTCCategory {
	if code == "" {
		return model.CategoryUnknown
	}
	switch code[0] {
	case 'P':
		return model.CategoryPowertrain
	case 'C':
		return model.CategoryChassis
	case 'B':
		return model.CategoryBody
	case 'U':
		return model.CategoryNetwork
	}
	return model.CategoryUnknown
}

// Table builds the exported knowledge base from the compact static table.
func Table() map[string]model.DTCCode {
	out := make(map[string]model.DTCCode, len(table))
	for code, e := range table {
		out[code] = model.DTCCode{
			Code:        code,
			Category:    categoryFor(code),
			Description: e.desc,
			Severity:    e.sev,
			System:      e.system,
			Action:      actionFor(e.sev),
			CostMinUSD:  e.costMin,
			CostMaxUSD:  e.costMax,
		}
	}
	return out
}
