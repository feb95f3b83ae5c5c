package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDuty(t *testing.T) {
	assert.Equal(t, []byte{1, 127, 1}, EncodeDuty(0.5))
	assert.Equal(t, []byte{1, 255, 0}, EncodeDuty(-1))
	assert.Equal(t, []byte{1, 0, 1}, EncodeDuty(0))
	assert.Equal(t, []byte{1, 255, 1}, EncodeDuty(3), "clamped")
}

func TestDecodeMotorReading(t *testing.T) {
	r, err := DecodeMotorReading([]byte{255, 0x3, 0xfb, 0xff, 0xff, 0xff, 0x2c, 0x01})
	require.NoError(t, err)
	assert.Equal(t, MotorReading{
		Duty:      1,
		Steps:     -5,
		Stops:     [2]bool{true, false},
		CurrentMA: 300,
	}, r)

	// direction bit clear means reverse
	r, err = DecodeMotorReading([]byte{51, 0x4, 0x10, 0x27, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, -0.2, r.Duty)
	assert.Equal(t, int64(10000), r.Steps)
	assert.Equal(t, [2]bool{false, true}, r.Stops)

	_, err = DecodeMotorReading([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRelayCodec(t *testing.T) {
	assert.Equal(t, []byte{1, 1}, EncodeRelay(true))
	assert.Equal(t, []byte{1, 0}, EncodeRelay(false))

	r, err := DecodeRelayReading([]byte{1})
	require.NoError(t, err)
	assert.True(t, r.On)

	_, err = DecodeRelayReading(nil)
	assert.Error(t, err)
}
