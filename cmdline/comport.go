package cmdline

import (
	"strconv"
	"strings"
)

// ComPort identifies one of the four legacy UART ports spec.md's
// `com1..com4=<port>[,baud[,bits[,parity[,stop]]]]` syntax configures.
type ComPort uint8

const (
	COM1 ComPort = iota
	COM2
	COM3
	COM4
)

// Legacy UART I/O port addresses, per original_source/include/drivers/serial.h.
const (
	Com1Port uint16 = 0x3f8
	Com2Port uint16 = 0x2f8
	Com3Port uint16 = 0x3e8
	Com4Port uint16 = 0x2e8
)

// Parity matches original's com_parity_t.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityHigh
	ParityLow
)

// UARTConfig is the decoded form of one com*= token.
type UARTConfig struct {
	Port     uint16
	Baud     uint64
	DataBits uint8
	Parity   Parity
	StopBits uint8
}

// DefaultUARTConfig is used whenever a com*= token is absent or malformed,
// matching spec.md scenario 2: "bogus values are ignored and the default
// 0x3f8,115200,8N1 is used."
var DefaultUARTConfig = UARTConfig{Port: Com1Port, Baud: 115200, DataBits: 8, Parity: ParityNone, StopBits: 1}

var validBauds = map[uint64]bool{
	300: true, 1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true, 115200: true,
}

var validPorts = map[uint16]bool{
	Com1Port: true, Com2Port: true, Com3Port: true, Com4Port: true,
}

func parseComPortField(s string) (uint16, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	p := uint16(n)
	return p, validPorts[p]
}

func parseComBaud(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil || !validBauds[n] {
		return 0, false
	}
	return n, true
}

func parseComDataBits(s string) (uint8, bool) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false
	}
	switch n {
	case 5, 6, 7, 8:
		return uint8(n), true
	default:
		return 0, false
	}
}

func parseComParity(s string) (Parity, bool) {
	if len(s) != 1 {
		return 0, false
	}
	switch s[0] {
	case 'n':
		return ParityNone, true
	case 'o':
		return ParityOdd, true
	case 'e':
		return ParityEven, true
	case 'h':
		return ParityHigh, true
	case 'l':
		return ParityLow, true
	default:
		return 0, false
	}
}

func parseComStopBits(s string) (uint8, bool) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false
	}
	switch n {
	case 1, 2:
		return uint8(n), true
	default:
		return 0, false
	}
}

// ParseComPort decodes the raw "port[,baud[,bits[,parity[,stop]]]]" value a
// com1=/com2=/com3=/com4= token stored, returning DefaultUARTConfig (and
// false) on any malformed field, matching original's parse_com_port: the
// whole token is rejected rather than partially applied.
func ParseComPort(raw string) (UARTConfig, bool) {
	if raw == "" {
		return DefaultUARTConfig, false
	}

	fields := strings.Split(raw, ",")
	cfg := DefaultUARTConfig

	port, ok := parseComPortField(fields[0])
	if !ok {
		return DefaultUARTConfig, false
	}
	cfg.Port = port

	if len(fields) > 1 && fields[1] != "" {
		if cfg.Baud, ok = parseComBaud(fields[1]); !ok {
			return DefaultUARTConfig, false
		}
	} else {
		cfg.Baud = DefaultUARTConfig.Baud
	}

	if len(fields) > 2 && fields[2] != "" {
		if cfg.DataBits, ok = parseComDataBits(fields[2]); !ok {
			return DefaultUARTConfig, false
		}
	} else {
		cfg.DataBits = DefaultUARTConfig.DataBits
	}

	if len(fields) > 3 && fields[3] != "" {
		if cfg.Parity, ok = parseComParity(fields[3]); !ok {
			return DefaultUARTConfig, false
		}
	} else {
		cfg.Parity = DefaultUARTConfig.Parity
	}

	if len(fields) > 4 && fields[4] != "" {
		if cfg.StopBits, ok = parseComStopBits(fields[4]); !ok {
			return DefaultUARTConfig, false
		}
	} else {
		cfg.StopBits = DefaultUARTConfig.StopBits
	}

	return cfg, true
}
