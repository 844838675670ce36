package decompressor

import (
	"fmt"
	"sort"

	"lowpan.xyz/schc/internal/parser"
	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// ComputeFunc restores one elided field from the already-reconstructed
// descriptor. pos is the field's index in pd.Fields.
type ComputeFunc func(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error)

type computeSpec struct {
	fn   ComputeFunc
	deps map[string]bool // field ids that must be restored first
}

type computeEntry struct {
	pos  int
	id   string
	spec computeSpec
}

// computeFuncs maps field ids to their recomputation logic. A rule may
// elide any of these with a compute action.
var computeFuncs = map[string]computeSpec{
	parser.IPv6PayloadLength: {fn: computeIPv6PayloadLength},
	parser.IPv4TotalLength:   {fn: computeIPv4TotalLength},
	parser.IPv4HeaderChecksum: {
		fn:   computeIPv4HeaderChecksum,
		deps: map[string]bool{parser.IPv4TotalLength: true},
	},
	parser.UDPLength: {fn: computeUDPLength},
	parser.UDPChecksum: {
		fn: computeUDPChecksum,
		deps: map[string]bool{
			parser.UDPLength:         true,
			parser.IPv6PayloadLength: true,
			parser.IPv4TotalLength:   true,
		},
	},
}

// Computable reports whether the engine knows how to recompute the field.
// Ruleset loaders use this to pair an ignore operator with a compute
// action.
func Computable(fieldID string) bool {
	_, exists := computeFuncs[fieldID]
	return exists
}

func lookupCompute(rf schc.RuleField, pos int) (computeEntry, error) {
	spec, exists := computeFuncs[rf.ID]
	if !exists {
		return computeEntry{}, fmt.Errorf("%w: no compute function for field %s",
			schc.ErrContextInvalid, rf.ID)
	}
	return computeEntry{pos: pos, id: rf.ID, spec: spec}, nil
}

// runComputePass restores the deferred fields, dependencies first:
// lengths before the checksums summing over them.
func runComputePass(pd *schc.PacketDescriptor, entries []computeEntry) error {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[j].spec.deps[entries[i].id] {
			return true
		}
		if entries[i].spec.deps[entries[j].id] {
			return false
		}
		return entries[i].pos < entries[j].pos
	})
	for _, entry := range entries {
		value, err := entry.spec.fn(pd, entry.pos)
		if err != nil {
			return fmt.Errorf("compute %s: %w", entry.id, err)
		}
		pd.Fields[entry.pos].Value = value
		pd.Fields[entry.pos].Length = value.Len()
	}
	return nil
}

// bitsFrom concatenates field values from index start to the end of the
// descriptor, payload included.
func bitsFrom(pd *schc.PacketDescriptor, start int) bitbuf.Buffer {
	out := bitbuf.Buffer{}
	for _, f := range pd.Fields[start:] {
		out = out.Append(f.Value)
	}
	return out.Append(pd.Payload)
}

func byteCount(bits int) int {
	return (bits + 7) / 8
}

// computeIPv6PayloadLength sums everything after the 40-byte base header.
// The payload length field sits 5 fields before the end of the IPv6
// header (next header, hop limit, source, destination follow it).
func computeIPv6PayloadLength(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error) {
	after := bitsFrom(pd, pos+5)
	return bitbuf.FromUint(uint64(byteCount(after.Len())), 16), nil
}

// computeIPv4TotalLength counts from the start of the IPv4 header, 3
// fields before the total length field.
func computeIPv4TotalLength(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error) {
	if pos < 3 {
		return bitbuf.Buffer{}, fmt.Errorf("%w: total length at field %d", schc.ErrContextInvalid, pos)
	}
	header := bitsFrom(pd, pos-3)
	return bitbuf.FromUint(uint64(byteCount(header.Len())), 16), nil
}

// computeIPv4HeaderChecksum folds the one's complement sum of the twelve
// base header fields; the checksum field itself is the zero placeholder at
// this point (RFC 791).
func computeIPv4HeaderChecksum(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error) {
	if pos < 9 || pos+3 > len(pd.Fields) {
		return bitbuf.Buffer{}, fmt.Errorf("%w: header checksum at field %d", schc.ErrContextInvalid, pos)
	}
	header := bitbuf.Buffer{}
	for _, f := range pd.Fields[pos-9 : pos+3] {
		header = header.Append(f.Value)
	}
	sum, err := onesComplementSum(header)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	return bitbuf.FromUint(uint64(^sum), 16), nil
}

// computeUDPLength covers the UDP header and everything after it. The
// length field sits 2 fields after the start of the UDP header.
func computeUDPLength(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error) {
	if pos < 2 {
		return bitbuf.Buffer{}, fmt.Errorf("%w: UDP length at field %d", schc.ErrContextInvalid, pos)
	}
	datagram := bitsFrom(pd, pos-2)
	return bitbuf.FromUint(uint64(byteCount(datagram.Len())), 16), nil
}

// computeUDPChecksum runs the pseudo-header algorithm of RFC 768/2460. For
// IPv6 a computed zero is transmitted as 0xFFFF.
func computeUDPChecksum(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, error) {
	if pos < 3 {
		return bitbuf.Buffer{}, fmt.Errorf("%w: UDP checksum at field %d", schc.ErrContextInvalid, pos)
	}

	pseudo, ipv6, err := pseudoHeader(pd, pos)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	// UDP header and data follow, the checksum placeholder still zero.
	datagram := bitsFrom(pd, pos-3)

	sum, err := onesComplementSum(pseudo.Append(datagram))
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	checksum := ^sum
	if checksum == 0 && ipv6 {
		checksum = 0xffff
	}
	return bitbuf.FromUint(uint64(checksum), 16), nil
}

// pseudoHeader assembles the IPv4 or IPv6 pseudo-header for the UDP
// checksum, locating the addresses by field id.
func pseudoHeader(pd *schc.PacketDescriptor, pos int) (bitbuf.Buffer, bool, error) {
	udpLength := pd.Fields[pos-1].Value

	var src, dst bitbuf.Buffer
	var ipv6 bool
	for _, f := range pd.Fields {
		switch f.ID {
		case parser.IPv6SrcAddress:
			src, ipv6 = f.Value, true
		case parser.IPv6DstAddress:
			dst = f.Value
		case parser.IPv4SrcAddress:
			src = f.Value
		case parser.IPv4DstAddress:
			dst = f.Value
		}
	}
	if src.Len() == 0 || dst.Len() == 0 {
		return bitbuf.Buffer{}, false, fmt.Errorf("%w: no network addresses for pseudo-header",
			schc.ErrContextInvalid)
	}

	if ipv6 {
		// src, dst, 32-bit upper-layer length, 24 zero bits, next header.
		length := bitbuf.Zero(16).Append(udpLength)
		return bitbuf.Concat(src, dst, length, bitbuf.Zero(24), bitbuf.FromUint(parser.ProtoUDP, 8)), true, nil
	}
	// src, dst, zero octet, protocol, 16-bit UDP length.
	return bitbuf.Concat(src, dst, bitbuf.Zero(8), bitbuf.FromUint(parser.ProtoUDP, 8), udpLength), false, nil
}

// onesComplementSum folds the 16-bit one's complement sum over the buffer,
// the final partial chunk padded with zeros on the right.
func onesComplementSum(data bitbuf.Buffer) (uint16, error) {
	var sum uint32
	for chunk := range data.Chunks(16) {
		if chunk.Len() < 16 {
			chunk = chunk.ShiftExtend(-(16 - chunk.Len()))
		}
		v, err := chunk.Uint()
		if err != nil {
			return 0, err
		}
		sum += uint32(v)
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum), nil
}
