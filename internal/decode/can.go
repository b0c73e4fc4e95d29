package decode

import (
	"encoding/binary"
	"fmt"
)

// SignalDef describes how to slice one signal out of a CAN payload:
// value = (raw >> StartBit & mask(Length)) * Factor + Offset.
// Intel (little-endian) byte order, the common automotive layout.
type SignalDef struct {
	Name     string  `yaml:"name"`
	StartBit uint    `yaml:"startBit"`
	Length   uint    `yaml:"length"`
	Factor   float64 `yaml:"factor"`
	Offset   float64 `yaml:"offset"`
	Unit     string  `yaml:"unit"`
}

// FrameDef is the decoded layout of one arbitration id.
type FrameDef struct {
	Name    string      `yaml:"name"`
	Signals []SignalDef `yaml:"signals"`
}

// SignalMap maps arbitration ids to their frame layouts, DBC-style.
type SignalMap map[uint32]FrameDef

// DefaultSignalMap covers the generic powertrain/fuel/battery frames the
// fleet hardware emits. Deployments with manufacturer DBC data override it
// from config.
func DefaultSignalMap() SignalMap {
	return SignalMap{
		0x0C0: {Name: "Engine_Data_1", Signals: []SignalDef{
			{Name: SignalEngineRPM, StartBit: 0, Length: 16, Factor: 0.25, Unit: "rpm"},
		}},
		0x0C1: {Name: "Engine_Data_2", Signals: []SignalDef{
			{Name: SignalCoolantTemp, StartBit: 0, Length: 8, Factor: 1, Offset: -40, Unit: "degC"},
			{Name: SignalOilTemp, StartBit: 16, Length: 8, Factor: 1, Offset: -40, Unit: "degC"},
		}},
		0x0D0: {Name: "Vehicle_Speed", Signals: []SignalDef{
			{Name: SignalVehicleSpeed, StartBit: 0, Length: 16, Factor: 0.01, Unit: "km/h"},
		}},
		0x3B0: {Name: "Fuel_Data", Signals: []SignalDef{
			{Name: SignalFuelLevel, StartBit: 0, Length: 8, Factor: 0.5, Unit: "%"},
		}},
		0x3C0: {Name: "Battery_Data", Signals: []SignalDef{
			{Name: SignalBatteryVoltage, StartBit: 0, Length: 16, Factor: 0.001, Unit: "V"},
		}},
	}
}

// Signal names the decoder knows how to fold into Engine metrics. Signals
// with other names decode fine but are dropped from the fragment.
const (
	SignalEngineRPM      = "engine_rpm"
	SignalVehicleSpeed   = "vehicle_speed"
	SignalCoolantTemp    = "coolant_temp"
	SignalOilTemp        = "oil_temp"
	SignalThrottlePos    = "throttle_position"
	SignalFuelLevel      = "fuel_level"
	SignalBatteryVoltage = "battery_voltage"
)

// CANDecoder extracts monitored signals from raw CAN frames. Safe for
// concurrent use: the signal map is read-only after construction.
type CANDecoder struct {
	signals SignalMap
}

func NewCANDecoder(m SignalMap) *CANDecoder {
	if m == nil {
		m = DefaultSignalMap()
	}
	return &CANDecoder{signals: m}
}

// Decode parses the wire form of a CAN frame: 4-byte big-endian arbitration
// id, 1-byte DLC, then DLC payload bytes. Frames with ids outside the signal
// map decode to an empty fragment — the bus carries plenty we don't monitor.
func (d *CANDecoder) Decode(raw []byte) (Fragment, error) {
	if len(raw) < 5 {
		return Fragment{}, fmt.Errorf("can frame %d bytes: %w", len(raw), ErrMalformedFrame)
	}
	id := binary.BigEndian.Uint32(raw[:4])
	dlc := int(raw[4])
	if dlc > 8 || len(raw) < 5+dlc {
		return Fragment{}, fmt.Errorf("can dlc %d with %d payload bytes: %w", dlc, len(raw)-5, ErrMalformedFrame)
	}
	return d.DecodeFrame(id, raw[5:5+dlc]), nil
}

// DecodeFrame decodes an already-split frame (id + payload).
func (d *CANDecoder) DecodeFrame(id uint32, payload []byte) Fragment {
	def, ok := d.signals[id]
	if !ok {
		return Fragment{}
	}
	var frag Fragment
	for _, sig := range def.Signals {
		if sig.StartBit+sig.Length > uint(len(payload))*8 {
			continue // signal extends past this frame's payload
		}
		v := float64(extractBits(payload, sig.StartBit, sig.Length))*sig.Factor + sig.Offset
		switch sig.Name {
		case SignalEngineRPM:
			frag.Engine.RPM = f64(v)
		case SignalVehicleSpeed:
			frag.Engine.SpeedKmh = f64(v)
		case SignalCoolantTemp:
			frag.Engine.CoolantTempC = f64(v)
		case SignalOilTemp:
			frag.Engine.OilTempC = f64(v)
		case SignalThrottlePos:
			frag.Engine.ThrottlePct = f64(v)
		case SignalFuelLevel:
			frag.Engine.FuelPct = f64(v)
		case SignalBatteryVoltage:
			frag.Engine.BatteryVoltage = f64(v)
		}
	}
	return frag
}

// extractBits slices an unsigned little-endian bit field out of the payload.
func extractBits(payload []byte, start, length uint) uint64 {
	var raw uint64
	for i := len(payload) - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(payload[i])
	}
	mask := uint64(1)<<length - 1
	return raw >> start & mask
}
