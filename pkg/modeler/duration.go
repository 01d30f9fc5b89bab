package modeler

import (
	"fmt"
	"strconv"
	"strings"
)

// ISODurationFromSeconds converts a duration in seconds to the ISO 8601
// PT notation, decomposed into day/hour/minute/second components. Leading
// zero components are omitted; a zero duration yields "PT0S".
func ISODurationFromSeconds(seconds int) string {
	units := []struct {
		tag     string
		divisor int
	}{
		{"D", 60 * 60 * 24},
		{"H", 60 * 60},
		{"M", 60},
		{"S", 1},
	}

	var b strings.Builder
	b.WriteString("PT")
	wrote := false
	for _, u := range units {
		qty := seconds / u.divisor
		if qty == 0 && !wrote {
			continue
		}
		seconds -= qty * u.divisor
		fmt.Fprintf(&b, "%d%s", qty, u.tag)
		wrote = true
	}
	if !wrote {
		b.WriteString("0S")
	}
	return b.String()
}

// ISODurationFromLegacy converts a legacy "HH:MM:SS" duration string to the
// ISO 8601 PT notation.
func ISODurationFromLegacy(duration string) string {
	parts := strings.Split(duration, ":")
	seconds := 0
	if len(parts) == 3 {
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		s, _ := strconv.Atoi(strings.SplitN(parts[2], ".", 2)[0])
		seconds = h*3600 + m*60 + s
	}
	return ISODurationFromSeconds(seconds)
}
