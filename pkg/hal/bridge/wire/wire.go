// Package wire encodes and decodes the bridge line protocol. It is shared by
// the host driver and the TinyGo firmware, so it only depends on strings and
// strconv.
package wire

import (
	"errors"
	"strconv"
	"strings"
)

// Op is a command opcode.
type Op byte

const (
	OpWrite Op = 'W' // W <pin> <0|1>
	OpRead  Op = 'R' // R <pin>
	OpPing  Op = 'P' // P
)

// Fixed replies.
const (
	ReplyOK   = "OK"
	ReplyPong = "PONG"
	errPrefix = "ERR"
)

// ErrSyntax is returned for malformed lines.
var ErrSyntax = errors.New("wire: syntax error")

// Command is one host request.
type Command struct {
	Op   Op
	Pin  uint8
	High bool
}

// String encodes c without the trailing newline.
func (c Command) String() string {
	switch c.Op {
	case OpWrite:
		level := "0"
		if c.High {
			level = "1"
		}
		return "W " + strconv.Itoa(int(c.Pin)) + " " + level
	case OpRead:
		return "R " + strconv.Itoa(int(c.Pin))
	case OpPing:
		return "P"
	}
	return "?"
}

// ParseCommand decodes a request line.
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 || len(f[0]) != 1 {
		return Command{}, ErrSyntax
	}
	c := Command{Op: Op(f[0][0])}
	switch c.Op {
	case OpPing:
		if len(f) != 1 {
			return Command{}, ErrSyntax
		}
		return c, nil
	case OpRead:
		if len(f) != 2 {
			return Command{}, ErrSyntax
		}
	case OpWrite:
		if len(f) != 3 {
			return Command{}, ErrSyntax
		}
		switch f[2] {
		case "0":
		case "1":
			c.High = true
		default:
			return Command{}, ErrSyntax
		}
	default:
		return Command{}, ErrSyntax
	}

	pin, err := strconv.ParseUint(f[1], 10, 8)
	if err != nil {
		return Command{}, ErrSyntax
	}
	c.Pin = uint8(pin)
	return c, nil
}

// Value encodes an analog reading reply.
func Value(pin uint8, v uint16) string {
	return "V " + strconv.Itoa(int(pin)) + " " + strconv.Itoa(int(v))
}

// Error encodes an error reply.
func Error(msg string) string {
	return errPrefix + " " + msg
}

// IsError reports whether line is an error reply and returns its text.
func IsError(line string) (string, bool) {
	msg, ok := strings.CutPrefix(line, errPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(msg), true
}

// ParseValue decodes a "V <pin> <value>" reply and checks that it is for pin.
func ParseValue(line string, pin uint8) (uint16, error) {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != "V" {
		return 0, errors.New("wire: invalid value reply " + strconv.Quote(line))
	}
	got, err := strconv.ParseUint(f[1], 10, 8)
	if err != nil {
		return 0, errors.New("wire: invalid pin in reply " + strconv.Quote(line))
	}
	if uint8(got) != pin {
		return 0, errors.New("wire: reply for pin " + f[1] + ", expected " + strconv.Itoa(int(pin)))
	}
	v, err := strconv.ParseUint(f[2], 10, 16)
	if err != nil {
		return 0, errors.New("wire: invalid value in reply " + strconv.Quote(line))
	}
	return uint16(v), nil
}
