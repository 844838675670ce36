// Package context loads compression contexts from YAML files. Rule
// entries carry target values only; the matching operator and action of
// each field are derived from the target unless stated explicitly.
package context

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"lowpan.xyz/schc/internal/parser"
	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// contextFile mirrors the YAML layout of a context document.
type contextFile struct {
	ID           string           `yaml:"id"`
	InterfaceID  string           `yaml:"interface_id"`
	Parser       string           `yaml:"parser"`
	RuleIDLength int              `yaml:"rule_id_length"`
	Rules        []map[string]any `yaml:"rules"`
}

// ruleSpec is one rule entry, decoded with mapstructure so rule documents
// may mix scalar and structured forms.
type ruleSpec struct {
	ID     uint64           `mapstructure:"id"`
	Nature string           `mapstructure:"nature"`
	Fields []map[string]any `mapstructure:"fields"`

	// Template expands a named header layout instead of (or before) the
	// explicit field list; Targets supplies its per-field target values.
	Template string         `mapstructure:"template"`
	Targets  map[string]any `mapstructure:"targets"`
}

// fieldSpec is one field entry of a rule.
type fieldSpec struct {
	ID        string `mapstructure:"id"`
	Length    int    `mapstructure:"length"`
	Position  int    `mapstructure:"position"`
	Direction string `mapstructure:"direction"`

	// Target forms: a scalar target, a mapping list, or nothing.
	Target  any   `mapstructure:"target"`
	Mapping []any `mapstructure:"mapping"`

	// MSB keeps only the given number of leading target bits as the
	// matching pattern.
	MSB int `mapstructure:"msb"`

	// Explicit overrides; normally derived.
	MO  string `mapstructure:"mo"`
	CDA string `mapstructure:"cda"`
}

// Load reads and validates one context file.
func Load(path string) (schc.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schc.Context{}, fmt.Errorf("failed to read context file %s: %w", path, err)
	}
	ctx, err := Parse(data)
	if err != nil {
		return schc.Context{}, fmt.Errorf("context file %s: %w", path, err)
	}
	return ctx, nil
}

// Parse builds a context from YAML bytes and validates it.
func Parse(data []byte) (schc.Context, error) {
	var file contextFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return schc.Context{}, fmt.Errorf("%w: %v", schc.ErrContextInvalid, err)
	}

	if _, err := parser.Factory(file.Parser); err != nil {
		return schc.Context{}, err
	}

	ctx := schc.Context{
		ID:           file.ID,
		InterfaceID:  file.InterfaceID,
		ParserID:     file.Parser,
		RuleIDLength: file.RuleIDLength,
	}

	for i, raw := range file.Rules {
		var spec ruleSpec
		if err := decode(raw, &spec); err != nil {
			return schc.Context{}, fmt.Errorf("rule %d: %w", i, err)
		}
		rule, err := buildRule(spec, file.RuleIDLength)
		if err != nil {
			return schc.Context{}, fmt.Errorf("rule %d: %w", i, err)
		}
		ctx.Rules = append(ctx.Rules, rule)
	}

	if err := ctx.Validate(); err != nil {
		return schc.Context{}, err
	}
	return ctx, nil
}

func buildRule(spec ruleSpec, idLength int) (schc.RuleDescriptor, error) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(spec.ID, idLength),
	}
	switch spec.Nature {
	case "", "compression":
		rule.Nature = schc.Compression
	case "no-compression":
		rule.Nature = schc.NoCompression
	default:
		return schc.RuleDescriptor{}, fmt.Errorf("%w: nature %q", schc.ErrContextInvalid, spec.Nature)
	}

	if spec.Template != "" {
		fields, err := Template(spec.Template, spec.Targets)
		if err != nil {
			return schc.RuleDescriptor{}, err
		}
		rule.Fields = append(rule.Fields, fields...)
	}
	for _, raw := range spec.Fields {
		var fs fieldSpec
		if err := decode(raw, &fs); err != nil {
			return schc.RuleDescriptor{}, err
		}
		rf, err := buildField(fs)
		if err != nil {
			return schc.RuleDescriptor{}, fmt.Errorf("field %s: %w", fs.ID, err)
		}
		rule.Fields = append(rule.Fields, rf)
	}
	return rule, nil
}

func buildField(fs fieldSpec) (schc.RuleField, error) {
	dir, err := schc.ParseDirection(fs.Direction)
	if err != nil {
		return schc.RuleField{}, err
	}
	rf := schc.RuleField{
		ID:        fs.ID,
		Length:    fs.Length,
		Position:  fs.Position,
		Direction: dir,
	}

	for _, entry := range fs.Mapping {
		target, err := targetValue(entry, fs.Length)
		if err != nil {
			return schc.RuleField{}, err
		}
		rf.Mapping = append(rf.Mapping, target)
	}
	if fs.Target != nil {
		rf.Target, err = targetValue(fs.Target, fs.Length)
		if err != nil {
			return schc.RuleField{}, err
		}
		if fs.MSB > 0 {
			if fs.MSB > rf.Target.Len() {
				return schc.RuleField{}, fmt.Errorf("%w: msb %d exceeds %d target bits",
					schc.ErrContextInvalid, fs.MSB, rf.Target.Len())
			}
			rf.Target, err = rf.Target.Slice(0, fs.MSB)
			if err != nil {
				return schc.RuleField{}, err
			}
		}
	}

	rf.MO, err = selectMO(fs, rf)
	if err != nil {
		return schc.RuleField{}, err
	}
	rf.Action, err = selectAction(fs, rf)
	if err != nil {
		return schc.RuleField{}, err
	}
	return rf, nil
}

// targetValue converts a YAML scalar into a buffer: integers become
// left-padded values of the field length, strings are read as hex. A hex
// target keeps only its low-order field-length bits when the field has a
// fixed length no longer than the hex bytes, and spans whole bytes
// otherwise.
func targetValue(v any, fieldLength int) (bitbuf.Buffer, error) {
	switch value := v.(type) {
	case int:
		return intTarget(uint64(value), fieldLength)
	case int64:
		return intTarget(uint64(value), fieldLength)
	case uint64:
		return intTarget(value, fieldLength)
	case string:
		cleaned := strings.TrimPrefix(strings.ReplaceAll(value, " ", ""), "0x")
		raw, err := hex.DecodeString(cleaned)
		if err != nil {
			return bitbuf.Buffer{}, fmt.Errorf("%w: target %q: %v", schc.ErrContextInvalid, value, err)
		}
		if fieldLength > 0 && fieldLength <= 8*len(raw) {
			return bitbuf.New(raw, 8*len(raw), bitbuf.Left).Slice(8*len(raw)-fieldLength, 8*len(raw))
		}
		return bitbuf.FromBytes(raw), nil
	default:
		return bitbuf.Buffer{}, fmt.Errorf("%w: unsupported target %T", schc.ErrContextInvalid, v)
	}
}

func intTarget(v uint64, fieldLength int) (bitbuf.Buffer, error) {
	length := fieldLength
	if length == 0 || length > 64 {
		return bitbuf.Buffer{}, fmt.Errorf("%w: integer target needs a fixed field length up to 64 bits",
			schc.ErrContextInvalid)
	}
	return bitbuf.FromUint(v, length), nil
}

// decode maps a YAML node onto a spec struct, rejecting unknown keys so
// typos in rule files surface at load time.
func decode(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", schc.ErrContextInvalid, err)
	}
	return nil
}
