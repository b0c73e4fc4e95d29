// Package dtc classifies diagnostic trouble codes against a static
// knowledge base and rolls fault state up to fleet level.
package dtc

import (
	"fmt"
	"sort"

	"fleettrack/internal/model"
)

// Analyzer looks up trouble codes in an immutable table. Safe for concurrent
// use: the table is never mutated after construction.
type Analyzer struct {
	codes map[string]model.DTCCode
}

// NewAnalyzer builds an analyzer over the built-in table merged with any
// custom entries (custom wins on collision).
func NewAnalyzer(custom map[string]model.DTCCode) *Analyzer {
	codes := Table()
	for k, v := range custom {
		codes[k] = v
	}
	return &Analyzer{codes: codes}
}

// Lookup returns the knowledge-base entry for a code.
func (a *Analyzer) Lookup(code string) (model.DTCCode, bool) {
	c, ok := a.codes[code]
	return c, ok
}

// Analyze classifies each reported code. Codes missing from the table
// degrade to an Unknown-severity diagnosis with a generic action — one bad
// code never blocks reporting the rest. Results are sorted worst-first.
func (a *Analyzer) Analyze(codes []string) []model.Diagnosis {
	out := make([]model.Diagnosis, 0, len(codes))
	seen := map[string]bool{}
	for _, code := range codes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if info, ok := a.codes[code]; ok {
			out = append(out, model.Diagnosis{
				Code:        code,
				Known:       true,
				Category:    info.Category,
				Description: info.Description,
				Severity:    info.Severity,
				System:      info.System,
				Action:      info.Action,
			})
			continue
		}
		cat := categoryFor(code)
		out = append(out, model.Diagnosis{
			Code:        code,
			Known:       false,
			Category:    cat,
			Description: fmt.Sprintf("Unknown %s code (manufacturer-specific)", cat),
			Severity:    model.SeverityUnknown,
			System:      string(cat),
			Action:      actionUnknown,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// WorstSeverity returns the highest-ranked severity among the diagnoses,
// or Unknown when the list is empty.
func WorstSeverity(diags []model.Diagnosis) model.DTCSeverity {
	worst := model.SeverityUnknown
	for _, d := range diags {
		if d.Severity.Rank() > worst.Rank() {
			worst = d.Severity
		}
	}
	return worst
}

// SafeToDrive reports whether any diagnosis demands stopping the vehicle.
func SafeToDrive(diags []model.Diagnosis) bool {
	for _, d := range diags {
		if d.Severity == model.SeverityCritical {
			return false
		}
	}
	return true
}

// Suggestions derives maintenance recommendations with cost ranges from a
// set of diagnoses, one per known code.
func (a *Analyzer) Suggestions(diags []model.Diagnosis) []model.MaintenanceSuggestion {
	out := []model.MaintenanceSuggestion{}
	for _, d := range diags {
		info, ok := a.codes[d.Code]
		if !ok {
			continue
		}
		kind := "engine_diagnostic"
		switch info.System {
		case "transmission":
			kind = "transmission_service"
		case "emissions":
			kind = "emissions_service"
		case "abs", "steering", "airbag":
			kind = "safety_inspection"
		}
		out = append(out, model.MaintenanceSuggestion{
			Type:        kind,
			Priority:    info.Severity,
			Description: fmt.Sprintf("%s: %s", info.System, info.Description),
			CostMinUSD:  info.CostMinUSD,
			CostMaxUSD:  info.CostMaxUSD,
		})
	}
	return out
}

// FleetRollup aggregates per-vehicle code sets into the fleet health view:
// worst severity present anywhere plus the count of critical codes.
func (a *Analyzer) FleetRollup(byVehicle map[string][]string) model.FleetHealth {
	health := model.FleetHealth{Vehicles: len(byVehicle), WorstSeverity: model.SeverityUnknown}
	for _, codes := range byVehicle {
		if len(codes) == 0 {
			continue
		}
		health.WithFaults++
		for _, d := range a.Analyze(codes) {
			if d.Severity.Rank() > health.WorstSeverity.Rank() {
				health.WorstSeverity = d.Severity
			}
			if d.Severity == model.SeverityCritical {
				health.CriticalCodes++
			}
		}
	}
	return health
}
