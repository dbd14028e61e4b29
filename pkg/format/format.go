// Package format turns transfer measurements into short human-readable
// strings for progress displays and log lines.
package format

import (
	"fmt"
	"math"
	"time"

	// Packages
	humanize "github.com/dustin/go-humanize"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Calculating is shown in place of an ETA when the speed is unknown.
const Calculating = "Calculating…"

const (
	kib = 1024
	mib = 1024 * kib
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Bytes returns a byte count in binary units, for example "1.5 MiB".
func Bytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// Speed returns a throughput in bytes per second, for example "2.4 MB/s".
// Units step at 1024.
func Speed(bps float64) string {
	switch {
	case bps <= 0 || math.IsNaN(bps) || math.IsInf(bps, 0):
		return "0 B/s"
	case bps >= mib:
		return fmt.Sprintf("%.1f MB/s", bps/mib)
	case bps >= kib:
		return fmt.Sprintf("%.1f KB/s", bps/kib)
	default:
		return fmt.Sprintf("%.1f B/s", bps)
	}
}

// ETA returns a remaining duration as "12s", "4m 3s" or "1h 5m". A negative
// duration means unknown and returns Calculating.
func ETA(d time.Duration) string {
	if d < 0 {
		return Calculating
	}
	seconds := int64(d / time.Second)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// Percent returns a percentage with one decimal place, trimming ".0", for
// example "42.5%" or "100%".
func Percent(p float64) string {
	p = math.Max(0, math.Min(100, p))
	return humanize.FtoaWithDigits(p, 1) + "%"
}

// Count returns an integer with thousands separators, for example "1,024".
func Count(n int64) string {
	return humanize.Comma(n)
}
