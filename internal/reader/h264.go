package reader

import (
	"encoding/base64"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H.264 NAL unit types used by the assembler.
const (
	nalIDR   = 5
	nalSPS   = 7
	nalPPS   = 8
	nalSTAPA = 24
	nalFUA   = 28
)

var annexBStart = []byte{0, 0, 0, 1}

// accessUnit is one Annex-B encoded picture and its RTP timestamp.
type accessUnit struct {
	data      []byte
	timestamp uint32
}

// h264Assembler groups depacketized NAL units into access units. A unit is
// complete on the RTP marker bit or when the timestamp changes. SPS/PPS from
// the SDP are inserted before every IDR that does not carry them in-band,
// and nothing is emitted before the first IDR.
type h264Assembler struct {
	depack   codecs.H264Packet
	sps, pps []byte

	buf     []byte
	ts      uint32
	pending bool
	hasIDR  bool
	hasPS   bool
	synced  bool
}

func newH264Assembler(fmtpLine string) *h264Assembler {
	sps, pps := parseSpsPps(fmtpLine)
	return &h264Assembler{sps: sps, pps: pps}
}

// push consumes one RTP packet and returns the access units it completed.
func (a *h264Assembler) push(pkt *rtp.Packet) []accessUnit {
	var out []accessUnit
	if len(pkt.Payload) == 0 {
		return nil
	}
	if a.pending && pkt.Timestamp != a.ts {
		out = a.flush(out)
	}

	a.classify(pkt.Payload)
	nals, err := a.depack.Unmarshal(pkt.Payload)
	if err == nil && len(nals) > 0 {
		a.buf = append(a.buf, nals...)
	}
	a.ts = pkt.Timestamp
	a.pending = true

	if pkt.Marker {
		out = a.flush(out)
	}
	return out
}

func (a *h264Assembler) classify(payload []byte) {
	switch payload[0] & 0x1F {
	case nalSPS, nalPPS:
		a.hasPS = true
	case nalSTAPA:
		if stapAContainsPS(payload) {
			a.hasPS = true
		}
		if stapAContains(payload, nalIDR) {
			a.hasIDR = true
		}
	case nalIDR:
		a.hasIDR = true
	case nalFUA:
		if len(payload) >= 2 && payload[1]&0x80 != 0 && payload[1]&0x1F == nalIDR {
			a.hasIDR = true
		}
	}
}

func (a *h264Assembler) flush(out []accessUnit) []accessUnit {
	buf, idr, ps, ts := a.buf, a.hasIDR, a.hasPS, a.ts
	a.buf, a.hasIDR, a.hasPS, a.pending = nil, false, false, false

	if len(buf) == 0 {
		return out
	}
	if idr {
		a.synced = true
	}
	if !a.synced {
		return out
	}
	if idr && !ps && len(a.sps) > 0 && len(a.pps) > 0 {
		prefix := make([]byte, 0, 2*len(annexBStart)+len(a.sps)+len(a.pps)+len(buf))
		prefix = append(prefix, annexBStart...)
		prefix = append(prefix, a.sps...)
		prefix = append(prefix, annexBStart...)
		prefix = append(prefix, a.pps...)
		buf = append(prefix, buf...)
	}
	return append(out, accessUnit{data: buf, timestamp: ts})
}

// stapAContainsPS checks if a STAP-A packet contains SPS or PPS.
func stapAContainsPS(payload []byte) bool {
	return stapAContains(payload, nalSPS) || stapAContains(payload, nalPPS)
}

func stapAContains(payload []byte, nalType byte) bool {
	offset := 1
	for offset+2 <= len(payload) {
		nalSize := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+nalSize > len(payload) || nalSize == 0 {
			break
		}
		if payload[offset]&0x1F == nalType {
			return true
		}
		offset += nalSize
	}
	return false
}

// parseSpsPps extracts SPS and PPS from an H.264 fmtp line.
func parseSpsPps(fmtpLine string) (sps, pps []byte) {
	const prefix = "sprop-parameter-sets="

	idx := strings.Index(fmtpLine, prefix)
	if idx < 0 {
		return nil, nil
	}

	value := fmtpLine[idx+len(prefix):]
	if semi := strings.Index(value, ";"); semi >= 0 {
		value = value[:semi]
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return nil, nil
	}

	sps, _ = base64.StdEncoding.DecodeString(parts[0])
	pps, _ = base64.StdEncoding.DecodeString(parts[1])
	return sps, pps
}
