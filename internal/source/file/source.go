// Package file reads packets from pcap capture files and hands the
// network-layer bytes to the compression engine.
package file

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Source iterates over the packets of one pcap file.
type Source struct {
	path     string
	reader   *pcapgo.Reader
	closer   io.Closer
	linkType layers.LinkType
}

// Open opens a pcap file for reading.
func Open(path string, r io.ReadCloser) (*Source, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	return &Source{
		path:     path,
		reader:   reader,
		closer:   r,
		linkType: reader.LinkType(),
	}, nil
}

// LinkType returns the capture's link layer type.
func (s *Source) LinkType() layers.LinkType { return s.linkType }

// ReadPacket returns the next frame. io.EOF signals the end of the file.
func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet from %s: %w", s.path, err)
	}
	return data, ci, nil
}

// NetworkPayload strips the link-layer header off a captured frame,
// returning the IP packet the engine consumes.
func (s *Source) NetworkPayload(data []byte) ([]byte, error) {
	packet := gopacket.NewPacket(data, s.linkType, gopacket.Lazy)
	if network := packet.NetworkLayer(); network != nil {
		return append(network.LayerContents(), network.LayerPayload()...), nil
	}
	if s.linkType == layers.LinkTypeRaw || s.linkType == layers.LinkTypeIPv4 || s.linkType == layers.LinkTypeIPv6 {
		return data, nil
	}
	return nil, fmt.Errorf("no network layer in %s frame", s.linkType)
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
