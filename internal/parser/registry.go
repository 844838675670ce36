package parser

import (
	"fmt"
	"sync"

	"lowpan.xyz/schc/pkg/schc"
)

// Registry keys. Values below 256 are IANA IP protocol numbers, keys at or
// above portHintBase are derived from well-known transport ports so that
// application protocols can be hinted at by UDP.
const (
	ProtoHopByHop = 0
	ProtoIPv4     = 4
	ProtoUDP      = 17
	ProtoIPv6     = 41
	ProtoRouting  = 43
	ProtoDstOpts  = 60
	ProtoSCTP     = 132

	portHintBase = 256
	ProtoCoAP    = portHintBase + 5683
)

var (
	mu        sync.RWMutex
	protocols = make(map[int]func() HeaderParser)
	stacks    = make(map[string][]func() HeaderParser)
)

// Register maps a registry key to a header parser constructor. Called from
// the init functions of the protocol files.
func Register(key int, ctor func() HeaderParser) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := protocols[key]; exists {
		panic(fmt.Sprintf("parser: protocol %d already registered", key))
	}
	protocols[key] = ctor
}

// RegisterStack maps a stack name to an ordered parser chain.
func RegisterStack(name string, ctors ...func() HeaderParser) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := stacks[name]; exists {
		panic(fmt.Sprintf("parser: stack %q already registered", name))
	}
	stacks[name] = ctors
}

// Lookup returns a fresh header parser for the given registry key.
func Lookup(key int) (HeaderParser, error) {
	mu.RLock()
	ctor, exists := protocols[key]
	mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: protocol %d", schc.ErrUnknownParser, key)
	}
	return ctor(), nil
}

// Factory builds the packet parser registered under the given stack name.
func Factory(stackID string) (*PacketParser, error) {
	mu.RLock()
	ctors, exists := stacks[stackID]
	mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: stack %q", schc.ErrUnknownParser, stackID)
	}
	chain := make([]HeaderParser, len(ctors))
	for i, ctor := range ctors {
		chain[i] = ctor()
	}
	return NewPacketParser(stackID, chain...), nil
}

// Stacks lists the registered stack names.
func Stacks() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(stacks))
	for name := range stacks {
		names = append(names, name)
	}
	return names
}

func init() {
	RegisterStack("IPv6-UDP-CoAP", NewIPv6, NewUDP, NewCoAP)
	RegisterStack("IPv4-UDP-CoAP", NewIPv4, NewUDP, NewCoAP)
	RegisterStack("IPv6-UDP", NewIPv6, NewUDP)
	RegisterStack("IPv4-UDP", NewIPv4, NewUDP)
	RegisterStack("IPv6-SCTP", NewIPv6, NewSCTP)
	RegisterStack("IPv4-SCTP", NewIPv4, NewSCTP)
}
