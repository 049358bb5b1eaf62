package platform

import (
	"fmt"
	"strings"
)

// Bitrate is the requested audio encoding tier, passed through to resolvers.
type Bitrate int

const (
	// Bitrate128 is standard 128 kbps MP3.
	Bitrate128 Bitrate = iota

	// Bitrate320 is high quality 320 kbps MP3.
	Bitrate320

	// BitrateFLAC is lossless FLAC.
	BitrateFLAC
)

// DefaultBitrate is used when nothing is configured.
const DefaultBitrate = Bitrate320

// String returns the wire name used in query strings and config.
func (b Bitrate) String() string {
	switch b {
	case Bitrate128:
		return "128k"
	case Bitrate320:
		return "320k"
	case BitrateFLAC:
		return "flac"
	default:
		return "unknown"
	}
}

// FallbackParam returns the br value understood by the secondary kuwo API.
func (b Bitrate) FallbackParam() string {
	switch b {
	case Bitrate128:
		return "128kmp3"
	case BitrateFLAC:
		return "2000kflac"
	default:
		return "320kmp3"
	}
}

// ParseBitrate converts a string to Bitrate. "128", "320" and "lossless" are accepted too.
func ParseBitrate(s string) (Bitrate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "128k", "128":
		return Bitrate128, nil
	case "320k", "320":
		return Bitrate320, nil
	case "flac", "lossless":
		return BitrateFLAC, nil
	default:
		return DefaultBitrate, fmt.Errorf("unknown bitrate: %s", s)
	}
}

// BitrateOr parses s and returns def when s is empty or unknown.
func BitrateOr(s string, def Bitrate) Bitrate {
	if strings.TrimSpace(s) == "" {
		return def
	}
	b, err := ParseBitrate(s)
	if err != nil {
		return def
	}
	return b
}
