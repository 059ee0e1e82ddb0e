package downloader

import (
	"fmt"
	"regexp"
)

const (
	kib = 1024
	mib = 1024 * 1024
	gib = 1024 * 1024 * 1024
)

// FormatSpeed renders a byte rate in human units. Thresholds are strictly
// greater-than: 1024 B/s is still "1024.00 B/s".
func FormatSpeed(bytesPerSec float64) string {
	switch {
	case bytesPerSec <= 0:
		return "0 B/s"
	case bytesPerSec > gib:
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/gib)
	case bytesPerSec > mib:
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/mib)
	case bytesPerSec > kib:
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/kib)
	default:
		return fmt.Sprintf("%.2f B/s", bytesPerSec)
	}
}

var ansiEscape = regexp.MustCompile(`(?:\x1b[@-_]|[\x80-\x9f])[0-?]*[ -/]*[@-~]`)

// SanitizeError strips terminal escape sequences from engine error text
// before it is stored or broadcast.
func SanitizeError(msg string) string {
	return ansiEscape.ReplaceAllString(msg, "")
}

// Progress computes downloaded/total as a percentage in [0,100]. An unknown
// or zero total yields 0, never NaN or Inf.
func Progress(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(downloaded) / float64(total) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
