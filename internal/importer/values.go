package importer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errInvalidValue = errors.New("invalid value")

// parsePrice reads a non-negative price rounded to cents. A lone decimal
// comma is accepted for sheets exported with a European locale.
func parsePrice(column, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q is not a number", errInvalidValue, column, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s %q is negative", errInvalidValue, column, raw)
	}
	return roundCents(v), nil
}

// parseQuantity reads a non-negative whole quantity. Spreadsheets often
// store integers as "5.0", which is accepted.
func parseQuantity(column, raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: %s %q is negative", errInvalidValue, column, raw)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s %q is not a whole number", errInvalidValue, column, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %s %q is negative", errInvalidValue, column, raw)
	}
	return int(f), nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func samePrice(a, b float64) bool {
	return roundCents(a) == roundCents(b)
}
