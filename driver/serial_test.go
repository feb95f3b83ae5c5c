package driver

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	in  *strings.Reader
	out bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

func newFakePort(resp string) *fakePort {
	return &fakePort{in: strings.NewReader(resp)}
}

func TestSerialBus_Tx(t *testing.T) {
	port := newFakePort("ok\n\n7f010a0000000000\nok\n")
	bus := NewSerialBus(port)

	err := bus.Tx(0x51, EncodeDuty(0.5), nil)
	require.NoError(t, err)

	buf := make([]byte, 8)
	err = bus.Tx(0x51, nil, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7f, 1, 0x0a, 0, 0, 0, 0, 0}, buf)

	assert.Equal(t, "T51 017f01 0\nT51 - 8\n", port.out.String())
}

func TestSerialBus_Errors(t *testing.T) {
	port := newFakePort("error:nack 0x61\nBridge v1\n0102\nok\n")
	bus := NewSerialBus(port)

	err := bus.Tx(0x61, nil, make([]byte, 1))
	assert.EqualError(t, err, "nack 0x61")

	err = bus.Tx(0x61, nil, make([]byte, 1))
	assert.Equal(t, ErrBridgeReset, err)

	err = bus.Tx(0x61, nil, make([]byte, 1))
	assert.Error(t, err, "short read")

	// port exhausted
	err = bus.Tx(0x61, nil, make([]byte, 1))
	assert.Error(t, err)
}
