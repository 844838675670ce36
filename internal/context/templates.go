package context

import (
	"fmt"

	"lowpan.xyz/schc/internal/parser"
	"lowpan.xyz/schc/pkg/schc"
)

// templateField is one slot of a header template: the field identity and
// an optional default target applied when the rule gives none.
type templateField struct {
	id            string
	length        int
	defaultTarget any
}

var ipv6Template = []templateField{
	{id: parser.IPv6Version, length: 4, defaultTarget: 6},
	{id: parser.IPv6TrafficClass, length: 8},
	{id: parser.IPv6FlowLabel, length: 20},
	{id: parser.IPv6PayloadLength, length: 16},
	{id: parser.IPv6NextHeader, length: 8},
	{id: parser.IPv6HopLimit, length: 8},
	{id: parser.IPv6SrcAddress, length: 128},
	{id: parser.IPv6DstAddress, length: 128},
}

var ipv4Template = []templateField{
	{id: parser.IPv4Version, length: 4, defaultTarget: 4},
	{id: parser.IPv4HeaderLength, length: 4, defaultTarget: 5},
	{id: parser.IPv4TypeOfService, length: 8},
	{id: parser.IPv4TotalLength, length: 16},
	{id: parser.IPv4Identification, length: 16},
	{id: parser.IPv4Flags, length: 3},
	{id: parser.IPv4FragmentOffset, length: 13},
	{id: parser.IPv4TimeToLive, length: 8},
	{id: parser.IPv4Protocol, length: 8},
	{id: parser.IPv4HeaderChecksum, length: 16},
	{id: parser.IPv4SrcAddress, length: 32},
	{id: parser.IPv4DstAddress, length: 32},
}

var udpTemplate = []templateField{
	{id: parser.UDPSourcePort, length: 16},
	{id: parser.UDPDestinationPort, length: 16},
	{id: parser.UDPLength, length: 16},
	{id: parser.UDPChecksum, length: 16},
}

var templates = map[string][]templateField{
	"IPv6":     ipv6Template,
	"IPv4":     ipv4Template,
	"UDP":      udpTemplate,
	"IPv6-UDP": append(append([]templateField(nil), ipv6Template...), udpTemplate...),
	"IPv4-UDP": append(append([]templateField(nil), ipv4Template...), udpTemplate...),
}

// Template expands a named header template into rule fields. targets maps
// field ids to target values (ints or hex strings, as in rule files);
// fields without a target fall back to the template default, and failing
// that derive an ignore operator — which turns into a compute action for
// the length and checksum fields the engine can restore.
func Template(name string, targets map[string]any) ([]schc.RuleField, error) {
	layout, exists := templates[name]
	if !exists {
		return nil, fmt.Errorf("%w: unknown template %q", schc.ErrContextInvalid, name)
	}
	fields := make([]schc.RuleField, 0, len(layout))
	for _, tf := range layout {
		target, given := targets[tf.id]
		if !given {
			target = tf.defaultTarget
		}
		fs := fieldSpec{ID: tf.id, Length: tf.length, Target: target}
		rf, err := buildField(fs)
		if err != nil {
			return nil, fmt.Errorf("template %s field %s: %w", name, tf.id, err)
		}
		fields = append(fields, rf)
	}
	return fields, nil
}
