package driver

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// ErrBridgeReset is returned when the bridge restarts during a transaction.
var ErrBridgeReset = errors.New("bridge reset")

// SerialBus is a Bus provided by a microcontroller bridge on a serial port.
//
// Each transaction is sent as a single line:
//
//	T<addr> <write hex or -> <read count>
//
// The bridge answers with a hex line holding the read bytes (when any were
// requested) followed by "ok" or "error:<message>".
type SerialBus struct {
	rw   io.ReadWriter
	scan *bufio.Scanner

	mx sync.Mutex
}

var _ Bus = (*SerialBus)(nil)

// OpenSerial opens the configured serial port.
func OpenSerial(cfg config.Bus) (*SerialBus, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", cfg.Port)
	}
	return NewSerialBus(port), nil
}

func NewSerialBus(rw io.ReadWriter) *SerialBus {
	return &SerialBus{
		rw:   rw,
		scan: bufio.NewScanner(rw),
	}
}

// Close will close the underlying ReadWriter, if it implements io.Closer.
func (s *SerialBus) Close() error {
	if closer, ok := s.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *SerialBus) Tx(addr uint16, w, r []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	data := "-"
	if len(w) > 0 {
		data = hex.EncodeToString(w)
	}
	_, err := fmt.Fprintf(s.rw, "T%02x %s %d\n", addr, data, len(r))
	if err != nil {
		return errors.Wrap(err, "write request")
	}

	var read []byte
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}

		switch {
		case line == "":
			continue
		case line == "ok":
			if len(read) != len(r) {
				return errors.Errorf("short read: expected %d bytes, got %d", len(r), len(read))
			}
			copy(r, read)
			return nil
		case strings.HasPrefix(line, "error:"):
			return errors.New(strings.TrimSpace(strings.TrimPrefix(line, "error:")))
		case strings.HasPrefix(line, "Bridge"):
			return ErrBridgeReset
		}

		read, err = hex.DecodeString(line)
		if err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
}

func (s *SerialBus) readLine() (string, error) {
	if !s.scan.Scan() {
		err := s.scan.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		// a stopped scanner never resumes
		s.scan = bufio.NewScanner(s.rw)
		return "", errors.Wrap(err, "read response")
	}
	return string(bytes.TrimSpace(s.scan.Bytes())), nil
}
