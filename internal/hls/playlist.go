package hls

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// buildPlaylist renders a live playlist for the given segments, ordered by
// sequence ascending. If ended is true an ENDLIST tag is appended.
func buildPlaylist(segments []segment, targetHint time.Duration, ended bool) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	if len(segments) == 0 {
		fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration(nil, targetHint))
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
		if ended {
			b.WriteString("#EXT-X-ENDLIST\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration(segments, targetHint))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", segments[0].sequence)

	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.duration.Seconds())
		b.WriteString(seg.name)
		b.WriteString("\n")
	}

	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// targetDuration is the ceiling in seconds of the longest segment, with the
// configured duration as a floor so the first playlist is already valid.
func targetDuration(segments []segment, hint time.Duration) int {
	longest := hint.Seconds()
	for _, seg := range segments {
		if seg.duration.Seconds() > longest {
			longest = seg.duration.Seconds()
		}
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}
