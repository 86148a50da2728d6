package codec

import "fmt"

// Serial wire format, bridge -> actuator controller:
//
//	0xA5, 0x02, LEFT, RIGHT, CHECKSUM
//
// LEFT and RIGHT are signed 8-bit speeds. CHECKSUM is the XOR of the
// payload bytes, so the firmware can detect truncated frames and
// resynchronize on the magic byte.
const (
	FrameMagic  byte = 0xA5
	framePayload     = 2
	FrameLen         = 5
)

// MotorFrame is the wire-level command carrying one per-side speed pair.
// Immutable once constructed; the transport owns it until transmitted.
type MotorFrame struct {
	Left  int8
	Right int8
}

// Stop is the all-zero frame used by the fail-safe path.
var Stop = MotorFrame{Left: 0, Right: 0}

// Bytes serializes the frame into its 5-byte wire representation.
func (f MotorFrame) Bytes() []byte {
	l, r := byte(f.Left), byte(f.Right)
	return []byte{FrameMagic, framePayload, l, r, l ^ r}
}

// DecodeFrame parses a wire frame back into a MotorFrame. It is used by
// tests and by any diagnostic reader; the actuator firmware performs the
// same checks.
func DecodeFrame(b []byte) (MotorFrame, error) {
	if len(b) != FrameLen {
		return MotorFrame{}, fmt.Errorf("frame length %d, want %d", len(b), FrameLen)
	}
	if b[0] != FrameMagic {
		return MotorFrame{}, fmt.Errorf("bad frame magic 0x%02X", b[0])
	}
	if b[1] != framePayload {
		return MotorFrame{}, fmt.Errorf("bad payload length %d", b[1])
	}
	if b[2]^b[3] != b[4] {
		return MotorFrame{}, fmt.Errorf("checksum mismatch")
	}
	return MotorFrame{Left: int8(b[2]), Right: int8(b[3])}, nil
}
