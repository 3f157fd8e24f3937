package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var fixedOffsetRegex = regexp.MustCompile(`^([+-])([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ParseLocation accepts either a fixed civil offset ("+07:00", "-03:30") or an
// IANA zone name ("Asia/Bangkok"). Fixed offsets never observe DST, which keeps
// "the day before class start" stable regardless of deployment region.
func ParseLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	switch strings.ToUpper(tz) {
	case "", "UTC", "Z":
		return time.UTC, nil
	}

	if m := fixedOffsetRegex.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone("UTC"+tz, offset), nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}
