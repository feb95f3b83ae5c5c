package driver

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	cmdSet = 1

	motorReadingSize = 8
	relayReadingSize = 1

	flagForward = 1 << 0
	flagStopLo  = 1 << 1
	flagStopHi  = 1 << 2
)

// EncodeDuty returns the set command for a duty in [-1, 1].
func EncodeDuty(duty float64) []byte {
	duty = math.Max(-1, math.Min(1, duty))
	var dir byte
	if duty >= 0 {
		dir = 1
	}
	return []byte{cmdSet, byte(math.Abs(duty) * 0xff), dir}
}

// DecodeMotorReading parses the 8 byte motor status frame:
// duty, flags, steps (int32 LE), current in mA (int16 LE).
func DecodeMotorReading(b []byte) (MotorReading, error) {
	if len(b) != motorReadingSize {
		return MotorReading{}, errors.Errorf("motor reading: expected %d bytes, got %d", motorReadingSize, len(b))
	}

	flags := b[1]
	duty := float64(b[0]) / 0xff
	if flags&flagForward == 0 {
		duty = -duty
	}

	return MotorReading{
		Duty:      duty,
		Steps:     int64(int32(binary.LittleEndian.Uint32(b[2:6]))),
		Stops:     [2]bool{flags&flagStopLo != 0, flags&flagStopHi != 0},
		CurrentMA: int(int16(binary.LittleEndian.Uint16(b[6:8]))),
	}, nil
}

func EncodeRelay(on bool) []byte {
	if on {
		return []byte{cmdSet, 1}
	}
	return []byte{cmdSet, 0}
}

func DecodeRelayReading(b []byte) (RelayReading, error) {
	if len(b) != relayReadingSize {
		return RelayReading{}, errors.Errorf("relay reading: expected %d byte, got %d", relayReadingSize, len(b))
	}
	return RelayReading{On: b[0] != 0}, nil
}
