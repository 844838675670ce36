// Package schc defines the data model for static context header
// compression: packet and rule descriptors, matching operators,
// compression actions and compression contexts (RFC 8724).
package schc

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
)

// Direction tells which way a packet travels relative to the constrained
// device: Up toward the network, Down toward the device.
type Direction uint8

const (
	Up Direction = iota
	Down
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Dw"
	case Bidirectional:
		return "Bi"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection reads the textual direction forms used in rule files.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "Up", "up":
		return Up, nil
	case "Dw", "Down", "down":
		return Down, nil
	case "Bi", "Bidirectional", "bidirectional", "":
		return Bidirectional, nil
	}
	return Bidirectional, fmt.Errorf("%w: unknown direction %q", ErrContextInvalid, s)
}

// Matches reports whether a rule field with direction d applies to a packet
// travelling in dir.
func (d Direction) Matches(dir Direction) bool {
	return d == Bidirectional || d == dir
}

// MatchingOperator decides whether a packet field value is acceptable for a
// rule field.
type MatchingOperator uint8

const (
	Ignore MatchingOperator = iota
	Equal
	MSB
	MatchMapping
)

func (mo MatchingOperator) String() string {
	switch mo {
	case Ignore:
		return "ignore"
	case Equal:
		return "equal"
	case MSB:
		return "MSB"
	case MatchMapping:
		return "match-mapping"
	}
	return fmt.Sprintf("MatchingOperator(%d)", uint8(mo))
}

// Action is the compression-decompression action applied to a field.
type Action uint8

const (
	NotSent Action = iota
	ValueSent
	MappingSent
	LSB
	Compute
)

func (a Action) String() string {
	switch a {
	case NotSent:
		return "not-sent"
	case ValueSent:
		return "value-sent"
	case MappingSent:
		return "mapping-sent"
	case LSB:
		return "LSB"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Field is one named slot of a parsed packet: its identity within the
// header stack and the raw bits found on the wire. Position disambiguates
// repeated occurrences of the same id, e.g. CoAP options.
type Field struct {
	ID        string
	Length    int
	Position  int
	Direction Direction
	Value     bitbuf.Buffer
}

// PacketDescriptor is the parser's view of one packet: the header fields in
// on-wire order, the application payload, and the raw bits the descriptor
// was parsed from.
type PacketDescriptor struct {
	Direction Direction
	Fields    []Field
	Payload   bitbuf.Buffer
	Raw       bitbuf.Buffer
}

// Buffer serialises the descriptor back to a bit stream by concatenating
// the field values in order followed by the payload.
func (pd PacketDescriptor) Buffer() bitbuf.Buffer {
	out := bitbuf.Buffer{}
	for _, f := range pd.Fields {
		out = out.Append(f.Value)
	}
	return out.Append(pd.Payload)
}

// Bytes serialises the descriptor to wire bytes, right-padding the final
// byte with zeros if the bit count is not a multiple of eight.
func (pd PacketDescriptor) Bytes() []byte {
	return pd.Buffer().ByteAligned()
}
