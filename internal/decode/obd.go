package decode

import (
	"fmt"
)

// SAE J1979 service modes (response side: request mode | 0x40).
const (
	obdModeCurrentData = 0x41
	obdModeStoredDTCs  = 0x43
)

// Standard mode-01 PIDs we decode, with the documented conversion formula.
const (
	pidCoolantTemp    = 0x05
	pidEngineRPM      = 0x0C
	pidVehicleSpeed   = 0x0D
	pidThrottlePos    = 0x11
	pidFuelLevel      = 0x2F
	pidControlVoltage = 0x42
	pidOilTemp        = 0x5C
)

// pidLen maps each supported PID to the number of data bytes its formula
// consumes.
var pidLen = map[byte]int{
	pidCoolantTemp:    1,
	pidEngineRPM:      2,
	pidVehicleSpeed:   1,
	pidThrottlePos:    1,
	pidFuelLevel:      1,
	pidControlVoltage: 2,
	pidOilTemp:        1,
}

// OBDDecoder decodes SAE J1979 response frames, reassembling ISO 15765
// segmented transport when the ECU splits a response across frames.
//
// A decoder instance belongs to one vehicle's stream and is not safe for
// concurrent use; the reassembly buffer assumes in-order delivery within
// the stream.
type OBDDecoder struct {
	asm isotpAssembler
}

func NewOBDDecoder() *OBDDecoder { return &OBDDecoder{} }

// Decode accepts either a plain response payload (mode byte, PID byte, data
// bytes) or an ISO-TP framed chunk of one. ISO-TP frames are buffered until
// the full payload arrives; the intermediate frames yield an empty fragment
// with no error.
func (d *OBDDecoder) Decode(raw []byte) (Fragment, error) {
	if len(raw) == 0 {
		return Fragment{}, fmt.Errorf("empty obd frame: %w", ErrMalformedFrame)
	}
	switch raw[0] >> 4 {
	case 0x0, 0x1, 0x2: // ISO-TP PCI: single, first, consecutive
		payload, done, err := d.asm.push(raw)
		if err != nil {
			return Fragment{}, err
		}
		if !done {
			return Fragment{}, nil
		}
		return decodeOBDPayload(payload)
	default:
		return decodeOBDPayload(raw)
	}
}

func decodeOBDPayload(p []byte) (Fragment, error) {
	if len(p) < 2 {
		return Fragment{}, fmt.Errorf("obd payload %d bytes: %w", len(p), ErrMalformedFrame)
	}
	switch p[0] {
	case obdModeCurrentData:
		return decodePID(p[1], p[2:])
	case obdModeStoredDTCs:
		return decodeStoredDTCs(p[1:])
	}
	return Fragment{}, fmt.Errorf("unsupported obd mode 0x%02X: %w", p[0], ErrMalformedFrame)
}

// decodePID applies the J1979 conversion formula for the PID. Unsupported
// PIDs are a decode error, never a defaulted value.
func decodePID(pid byte, data []byte) (Fragment, error) {
	n, ok := pidLen[pid]
	if !ok {
		return Fragment{}, fmt.Errorf("pid 0x%02X: %w", pid, ErrUnknownPID)
	}
	if len(data) < n {
		return Fragment{}, fmt.Errorf("pid 0x%02X needs %d data bytes, got %d: %w", pid, n, len(data), ErrMalformedFrame)
	}
	a := float64(data[0])
	var b float64
	if n > 1 {
		b = float64(data[1])
	}
	frag := Fragment{}
	switch pid {
	case pidEngineRPM:
		frag.Engine.RPM = f64((a*256 + b) / 4)
	case pidVehicleSpeed:
		frag.Engine.SpeedKmh = f64(a)
	case pidCoolantTemp:
		frag.Engine.CoolantTempC = f64(a - 40)
	case pidOilTemp:
		frag.Engine.OilTempC = f64(a - 40)
	case pidThrottlePos:
		frag.Engine.ThrottlePct = f64(a * 100 / 255)
	case pidFuelLevel:
		frag.Engine.FuelPct = f64(a * 100 / 255)
	case pidControlVoltage:
		frag.Engine.BatteryVoltage = f64((a*256 + b) / 1000)
	}
	return frag, nil
}

// decodeStoredDTCs unpacks a mode-03 response: two bytes per code, the top
// two bits of the first byte selecting the SAE J2012 system letter.
func decodeStoredDTCs(data []byte) (Fragment, error) {
	if len(data)%2 != 0 {
		return Fragment{}, fmt.Errorf("odd dtc payload length %d: %w", len(data), ErrMalformedFrame)
	}
	letters := [4]byte{'P', 'C', 'B', 'U'}
	frag := Fragment{}
	for i := 0; i+1 < len(data); i += 2 {
		b1, b2 := data[i], data[i+1]
		if b1 == 0 && b2 == 0 {
			continue // padding
		}
		code := fmt.Sprintf("%c%d%X%X%X", letters[b1>>6], (b1>>4)&0x3, b1&0xF, b2>>4, b2&0xF)
		frag.DTCCodes = append(frag.DTCCodes, code)
	}
	return frag, nil
}

// isotpAssembler rebuilds a segmented ISO 15765-2 response. A missing or
// out-of-order consecutive frame discards the partial buffer; the caller
// must re-request, we never retry.
type isotpAssembler struct {
	buf     []byte
	total   int
	nextSeq byte
	active  bool
}

func (a *isotpAssembler) reset() {
	a.buf = nil
	a.total = 0
	a.nextSeq = 0
	a.active = false
}

// push consumes one ISO-TP frame and returns the full payload once the last
// consecutive frame lands.
func (a *isotpAssembler) push(raw []byte) ([]byte, bool, error) {
	switch raw[0] >> 4 {
	case 0x0: // single frame: low nibble is payload length
		a.reset()
		n := int(raw[0] & 0xF)
		if n == 0 || len(raw) < 1+n {
			return nil, false, fmt.Errorf("isotp single frame len %d: %w", n, ErrMalformedFrame)
		}
		return raw[1 : 1+n], true, nil
	case 0x1: // first frame: 12-bit total length
		if len(raw) < 2 {
			return nil, false, fmt.Errorf("isotp first frame too short: %w", ErrMalformedFrame)
		}
		a.reset()
		a.total = int(raw[0]&0xF)<<8 | int(raw[1])
		a.buf = append(a.buf, raw[2:]...)
		a.nextSeq = 1
		a.active = true
		return nil, false, nil
	case 0x2: // consecutive frame: low nibble is sequence number mod 16
		if !a.active {
			return nil, false, fmt.Errorf("consecutive frame without first frame: %w", ErrIncompleteFrame)
		}
		seq := raw[0] & 0xF
		if seq != a.nextSeq {
			a.reset()
			return nil, false, fmt.Errorf("consecutive frame out of order (want %d, got %d): %w", a.nextSeq, seq, ErrIncompleteFrame)
		}
		a.nextSeq = (a.nextSeq + 1) & 0xF
		a.buf = append(a.buf, raw[1:]...)
		if len(a.buf) >= a.total {
			payload := a.buf[:a.total]
			a.reset()
			return payload, true, nil
		}
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("isotp pci 0x%02X: %w", raw[0], ErrMalformedFrame)
}
