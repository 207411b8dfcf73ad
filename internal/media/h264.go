package media

// H264 NAL unit types relevant for keyframe detection on RTP payloads.
const (
	nalIDR   = 5
	nalSPS   = 7
	nalPPS   = 8
	nalStapA = 24
	nalFuA   = 28
)

// H264Keyframe reports whether an H264 RTP payload begins a keyframe.
// IDR slices count, as do SPS/PPS (they only appear at access points) and
// aggregation or fragmentation units carrying either.
func H264Keyframe(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	switch payload[0] & 0x1F {
	case nalIDR, nalSPS, nalPPS:
		return true
	case nalStapA:
		return stapAContainsKeyframe(payload)
	case nalFuA:
		// Only the first fragment of an IDR counts
		if len(payload) < 2 {
			return false
		}
		fuHeader := payload[1]
		return fuHeader&0x80 != 0 && fuHeader&0x1F == nalIDR
	}
	return false
}

// stapAContainsKeyframe walks STAP-A aggregation units looking for an IDR,
// SPS or PPS NAL.
func stapAContainsKeyframe(payload []byte) bool {
	offset := 1
	for offset+2 <= len(payload) {
		nalSize := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+nalSize > len(payload) || nalSize == 0 {
			break
		}
		switch payload[offset] & 0x1F {
		case nalIDR, nalSPS, nalPPS:
			return true
		}
		offset += nalSize
	}
	return false
}
