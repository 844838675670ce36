// Package engine wires a compression context to its packet parser, ruler,
// compressor and decompressor, and exposes the four entry points of the
// compression core: Parse, Match, Compress and Decompress. One engine
// processes one packet at a time; contexts are immutable, so the same
// context may back any number of engines.
package engine

import (
	"fmt"

	"lowpan.xyz/schc/internal/compressor"
	"lowpan.xyz/schc/internal/decompressor"
	"lowpan.xyz/schc/internal/log"
	"lowpan.xyz/schc/internal/metrics"
	"lowpan.xyz/schc/internal/parser"
	"lowpan.xyz/schc/internal/ruler"
	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// Engine runs compression and decompression against one context.
type Engine struct {
	ctx    schc.Context
	parser *parser.PacketParser
	ruler  *ruler.Ruler
	log    log.Logger
}

// New validates the context, builds its parser stack and returns a ready
// engine.
func New(ctx schc.Context) (*Engine, error) {
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	p, err := parser.Factory(ctx.ParserID)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", ctx.ID, err)
	}
	return &Engine{
		ctx:    ctx,
		parser: p,
		ruler:  ruler.New(ctx),
		log:    log.GetLogger().WithField("context", ctx.ID),
	}, nil
}

// Context returns the engine's immutable context.
func (e *Engine) Context() schc.Context { return e.ctx }

// Parse decomposes raw packet bytes into a packet descriptor.
func (e *Engine) Parse(data []byte, dir schc.Direction) (schc.PacketDescriptor, error) {
	pd, err := e.parser.Parse(data, dir)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(e.ctx.ID, "parse").Inc()
		return schc.PacketDescriptor{}, err
	}
	return pd, nil
}

// Match selects the rule applying to a parsed packet.
func (e *Engine) Match(pd schc.PacketDescriptor) (schc.RuleDescriptor, error) {
	rule, err := e.ruler.MatchPacket(pd)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(e.ctx.ID, "match").Inc()
		return schc.RuleDescriptor{}, err
	}
	return rule, nil
}

// Compress applies the rule's actions to a parsed packet.
func (e *Engine) Compress(pd schc.PacketDescriptor, rule schc.RuleDescriptor) (bitbuf.Buffer, error) {
	out, err := compressor.Compress(pd, rule)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(e.ctx.ID, "compress").Inc()
		return bitbuf.Buffer{}, err
	}
	metrics.PacketsCompressedTotal.WithLabelValues(e.ctx.ID, rule.ID.String()).Inc()
	if pd.Raw.Len() > 0 {
		metrics.CompressionRatio.WithLabelValues(e.ctx.ID).
			Observe(float64(out.Len()) / float64(pd.Raw.Len()))
		if saved := pd.Raw.Len() - out.Len(); saved > 0 {
			metrics.HeaderBitsSaved.WithLabelValues(e.ctx.ID).Observe(float64(saved))
		}
	}
	return out, nil
}

// CompressPacket composes the three forward steps: parse the bytes, select
// a rule and build the compressed stream.
func (e *Engine) CompressPacket(data []byte, dir schc.Direction) (bitbuf.Buffer, error) {
	pd, err := e.Parse(data, dir)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	rule, err := e.Match(pd)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	out, err := e.Compress(pd, rule)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	if e.log.IsDebugEnabled() {
		e.log.WithFields(map[string]interface{}{
			"rule":       rule.ID.String(),
			"packet":     pd.Raw.Len(),
			"compressed": out.Len(),
		}).Debug("packet compressed")
	}
	return out, nil
}

// Decompress rebuilds the packet descriptor carried by a compressed
// stream. The stream's leading rule id selects the rule; dir tells which
// way the reconstructed packet travels.
func (e *Engine) Decompress(packet bitbuf.Buffer, dir schc.Direction) (schc.PacketDescriptor, error) {
	rule, err := e.ruler.MatchStream(packet)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(e.ctx.ID, "decompress").Inc()
		return schc.PacketDescriptor{}, err
	}

	var pd schc.PacketDescriptor
	if rule.Nature == schc.NoCompression {
		pd, err = e.decompressVerbatim(packet, rule, dir)
	} else {
		pd, err = decompressor.Decompress(packet, rule, dir)
	}
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(e.ctx.ID, "decompress").Inc()
		return schc.PacketDescriptor{}, err
	}
	metrics.PacketsDecompressedTotal.WithLabelValues(e.ctx.ID, rule.ID.String()).Inc()
	return pd, nil
}

// DecompressBytes decompresses a byte-aligned compressed packet and
// serialises the result back to wire bytes.
func (e *Engine) DecompressBytes(data []byte, dir schc.Direction) ([]byte, error) {
	pd, err := e.Decompress(bitbuf.FromBytes(data), dir)
	if err != nil {
		return nil, err
	}
	return pd.Bytes(), nil
}

// decompressVerbatim strips the rule id off a no-compression stream and
// re-parses the embedded packet.
func (e *Engine) decompressVerbatim(packet bitbuf.Buffer, rule schc.RuleDescriptor, dir schc.Direction) (schc.PacketDescriptor, error) {
	raw, err := packet.Slice(rule.ID.Len(), packet.Len())
	if err != nil {
		return schc.PacketDescriptor{}, err
	}
	// Drop the sub-byte padding introduced when the stream was packed
	// into bytes; the embedded packet is a whole number of octets.
	if trim := raw.Len() % 8; trim > 0 {
		raw, err = raw.Slice(0, raw.Len()-trim)
		if err != nil {
			return schc.PacketDescriptor{}, err
		}
	}
	return e.parser.Parse(raw.ByteAligned(), dir)
}
