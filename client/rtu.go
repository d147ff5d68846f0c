package client

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hexalayer/gomodbus"
	"go.bug.st/serial"
)

// RTUClient is a synchronous, sequential Modbus RTU client. RTU
// framing carries no transaction id, so unlike Channel it cannot
// multiplex concurrent requests over one link: Request blocks the
// caller until a response, timeout, or I/O error resolves the one
// in-flight exchange.
type RTUClient struct {
	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
	logger  modbus.Logger
}

// RTUOption configures an RTUClient at construction time.
type RTUOption func(*rtuConfig)

type rtuConfig struct {
	serial  SerialConfig
	timeout time.Duration
	logger  modbus.Logger
}

func defaultRTUConfig() *rtuConfig {
	return &rtuConfig{
		serial:  DefaultSerialConfig(SerialConfig{}),
		timeout: 300 * time.Millisecond,
		logger:  modbus.NopLogger{},
	}
}

// WithRTUSerialConfig sets the baud rate/parity/stop bits for the link.
func WithRTUSerialConfig(c SerialConfig) RTUOption {
	return func(cfg *rtuConfig) { cfg.serial = c }
}

// WithRTUTimeout sets how long Request waits for a complete response
// before returning ErrResponseTimeout.
func WithRTUTimeout(d time.Duration) RTUOption {
	return func(cfg *rtuConfig) { cfg.timeout = d }
}

// WithRTULogger installs a structured logger.
func WithRTULogger(l modbus.Logger) RTUOption {
	return func(cfg *rtuConfig) {
		if l == nil {
			l = modbus.NopLogger{}
		}
		cfg.logger = l
	}
}

// OpenRTU opens the serial device at portName and returns a ready
// client. The physical port is held open for the client's lifetime;
// Close releases it.
func OpenRTU(portName string, opts ...RTUOption) (*RTUClient, error) {
	cfg := defaultRTUConfig()
	for _, o := range opts {
		o(cfg)
	}

	port, err := openSerialPort(portName, cfg.serial, cfg.timeout)
	if err != nil {
		return nil, modbus.NewIOError("open", err)
	}

	return &RTUClient{port: port, timeout: cfg.timeout, logger: cfg.logger}, nil
}

// Request performs one blocking request/response exchange against
// unitID. Only one Request may be in flight at a time; concurrent
// callers serialize on an internal mutex, matching the single
// request-at-a-time nature of a half-duplex serial link.
func (c *RTUClient) Request(unitID uint8, req modbus.Request) (modbus.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pdu, err := modbus.EncodeRequestPDU(req)
	if err != nil {
		return nil, err
	}
	adu, err := modbus.EncodeRTUFrame(unitID, pdu)
	if err != nil {
		return nil, err
	}

	if _, err := c.port.Write(adu); err != nil {
		return nil, modbus.NewIOError("write", err)
	}

	respADU, err := c.readResponse(req.FunctionCode())
	if err != nil {
		return nil, err
	}

	frame, err := modbus.DecodeRTUFrame(respADU)
	if err != nil {
		return nil, err
	}
	if frame.UnitID != unitID {
		return nil, modbus.ErrBadUnitID
	}

	return modbus.DecodeResponsePDU(req, frame.PDU)
}

// readResponse reads exactly one RTU ADU off the wire: unit id,
// function code, the length-determining byte, the rest of the PDU,
// then the CRC trailer, timing every read against c.timeout.
func (c *RTUClient) readResponse(reqFC modbus.FunctionCode) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)

	header := make([]byte, 2)
	if err := c.readFullBefore(header, deadline); err != nil {
		return nil, err
	}
	unitID, fcByte := header[0], header[1]
	fc := modbus.FunctionCode(fcByte)

	var pduLen int
	var extra []byte
	if fc.IsException() {
		pduLen = 2
	} else {
		if fc.Plain() != reqFC {
			return nil, modbus.ErrBadFunctionCode
		}
		probe := make([]byte, 1)
		if err := c.readFullBefore(probe, deadline); err != nil {
			return nil, err
		}
		n, err := rtuResponsePDULength(fc, probe[0])
		if err != nil {
			return nil, err
		}
		pduLen = n
		extra = probe
	}

	remaining := make([]byte, pduLen-1-len(extra)+2) // rest of PDU + CRC16
	if err := c.readFullBefore(remaining, deadline); err != nil {
		return nil, err
	}

	adu := make([]byte, 0, 1+pduLen+2)
	adu = append(adu, unitID, fcByte)
	adu = append(adu, extra...)
	adu = append(adu, remaining...)
	return adu, nil
}

func (c *RTUClient) readFullBefore(buf []byte, deadline time.Time) error {
	if time.Now().After(deadline) {
		return modbus.ErrResponseTimeout
	}
	total := 0
	for total < len(buf) {
		n, err := c.port.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return modbus.ErrResponseTimeout
			}
			return modbus.NewIOError("read", err)
		}
		if n == 0 && time.Now().After(deadline) {
			return modbus.ErrResponseTimeout
		}
	}
	return nil
}

// Close releases the underlying serial port.
func (c *RTUClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

func (c *RTUClient) String() string {
	return fmt.Sprintf("rtu-client(timeout=%s)", c.timeout)
}
