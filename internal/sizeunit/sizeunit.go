// Package sizeunit parses and formats byte counts in both decimal (KB, MB,
// GB, ...) and binary (KiB, MiB, GiB, ...) units. It also implements
// yaml.Unmarshaler so a Bytes value can be written as "50 GiB" in YAML,
// the way the teacher's BandwidthLimit.Max field (backed by a custom
// datasizeunit.Bits type) is written. The application config and
// ScheduleConfig size fields are plain int64 byte counts and do not use it.
package sizeunit

import (
	"fmt"
	"strconv"
	"strings"
)

// Bytes is a byte count with YAML-friendly parsing/formatting.
type Bytes int64

// Decimal unit multipliers.
const (
	Byte Bytes = 1
	Kilobyte    = Byte * 1000
	Megabyte    = Kilobyte * 1000
	Gigabyte    = Megabyte * 1000
	Terabyte    = Gigabyte * 1000
)

// Binary unit multipliers.
const (
	Kibibyte Bytes = 1 << 10
	Mebibyte       = Kibibyte << 10
	Gibibyte       = Mebibyte << 10
	Tebibyte       = Gibibyte << 10
)

var unitTable = []struct {
	suffix string
	mult   Bytes
}{
	{"TiB", Tebibyte}, {"GiB", Gibibyte}, {"MiB", Mebibyte}, {"KiB", Kibibyte},
	{"TB", Terabyte}, {"GB", Gigabyte}, {"MB", Megabyte}, {"KB", Kilobyte},
	{"T", Terabyte}, {"G", Gigabyte}, {"M", Megabyte}, {"K", Kilobyte},
	{"B", Byte},
}

// Parse accepts forms like "50GiB", "50 GiB", "1.5TB", "2048" (bytes, no
// unit). Parsing is case-insensitive on the unit suffix.
func Parse(s string) (Bytes, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("sizeunit: empty size string")
	}

	trimmed := s
	var mult Bytes = 1
	for _, u := range unitTable {
		if len(trimmed) < len(u.suffix) {
			continue
		}
		tail := trimmed[len(trimmed)-len(u.suffix):]
		if strings.EqualFold(tail, u.suffix) {
			trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len(u.suffix)])
			mult = u.mult
			break
		}
	}

	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return 0, fmt.Errorf("sizeunit: %q has a unit but no number", s)
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("sizeunit: cannot parse %q: %w", s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("sizeunit: %q is negative", s)
	}
	return Bytes(f * float64(mult)), nil
}

// MustParse panics on error; intended for static template definitions.
func MustParse(s string) Bytes {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String formats using binary units (GiB/MiB/...), the convention used
// throughout disk-fill reporting.
func (b Bytes) String() string {
	return b.FormatBinary()
}

// FormatBinary renders using IEC binary units.
func (b Bytes) FormatBinary() string {
	v := float64(b)
	switch {
	case b >= Tebibyte:
		return fmt.Sprintf("%.2f TiB", v/float64(Tebibyte))
	case b >= Gibibyte:
		return fmt.Sprintf("%.2f GiB", v/float64(Gibibyte))
	case b >= Mebibyte:
		return fmt.Sprintf("%.2f MiB", v/float64(Mebibyte))
	case b >= Kibibyte:
		return fmt.Sprintf("%.2f KiB", v/float64(Kibibyte))
	default:
		return fmt.Sprintf("%d B", int64(b))
	}
}

// FormatDecimal renders using SI decimal units.
func (b Bytes) FormatDecimal() string {
	v := float64(b)
	switch {
	case b >= Terabyte:
		return fmt.Sprintf("%.2f TB", v/float64(Terabyte))
	case b >= Gigabyte:
		return fmt.Sprintf("%.2f GB", v/float64(Gigabyte))
	case b >= Megabyte:
		return fmt.Sprintf("%.2f MB", v/float64(Megabyte))
	case b >= Kilobyte:
		return fmt.Sprintf("%.2f KB", v/float64(Kilobyte))
	default:
		return fmt.Sprintf("%d B", int64(b))
	}
}

// UnmarshalYAML implements yaml.Unmarshaler for plain string scalars.
func (b *Bytes) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler, round-tripping through FormatBinary.
func (b Bytes) MarshalYAML() (any, error) {
	return b.FormatBinary(), nil
}
