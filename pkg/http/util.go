package http

import (
	"strconv"
	"time"

	xutil "FxRollup/pkg/util"
)

// ParseIntDefault parses s or returns def if empty or invalid.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseRange parses optional from/to query values.
func ParseRange(from, to string) (time.Time, time.Time, error) { return xutil.ParseRange(from, to) }
