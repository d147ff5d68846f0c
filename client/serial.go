package client

import (
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes the physical link parameters for an RTU
// client. Modbus over serial line defaults to 8/E/1, falling back to
// 8/N/2 when no parity is used.
type SerialConfig struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultSerialConfig fills in the Modbus serial line defaults for
// whichever fields are left zero.
func DefaultSerialConfig(c SerialConfig) SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = 19200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == serial.NoParity && c.StopBits == 0 {
		c.StopBits = serial.TwoStopBits
	} else if c.StopBits == 0 {
		c.StopBits = serial.OneStopBit
	}
	return c
}

// openSerialPort opens portName and applies a fixed per-Read timeout.
// The RTU client checks its own per-request deadline between reads and
// sizes each response from its function code and byte count; no
// inter-character or inter-frame (t1.5/t3.5) timing is applied.
func openSerialPort(portName string, cfg SerialConfig, readTimeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
