package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

// Format selects how integral numbers are displayed.
type Format int

const (
	Decimal Format = iota
	Hex
)

func (f Format) String() string {
	if f == Hex {
		return "hex"
	}
	return "decimal"
}

// Toggle returns the other format.
func (f Format) Toggle() Format {
	if f == Hex {
		return Decimal
	}
	return Hex
}

// ParseFormat accepts "decimal", "dec", "hex" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "decimal", "dec":
		return Decimal, nil
	case "hex":
		return Hex, nil
	}
	return Decimal, fmt.Errorf("unknown format %q (want decimal or hex)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	v, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// int64 bounds as floats; the upper bound is exclusive.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

// FormatValue renders v for display. Integral numbers in the int64 range are
// shown as lowercase 0x hex when f is Hex; everything else uses the natural
// representation. FormatValue never fails.
func FormatValue(v evaluator.Value, f Format) string {
	if f == Hex {
		if n, ok := v.(evaluator.Number); ok && isHexable(n.Value) {
			return hexString(n.Value)
		}
	}
	return evaluator.Inspect(v)
}

func isHexable(n float64) bool {
	return n == math.Trunc(n) && n >= minInt64Float && n < maxInt64Float
}

func hexString(n float64) string {
	if n < 0 {
		return "-0x" + strconv.FormatUint(uint64(-n), 16)
	}
	return "0x" + strconv.FormatUint(uint64(n), 16)
}
