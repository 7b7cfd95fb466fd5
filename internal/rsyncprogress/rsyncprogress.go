// Package rsyncprogress parses lines from an rsync --info=progress2-style
// progress stream into tagged records.
package rsyncprogress

import (
	"regexp"
	"strconv"
	"strings"
)

// RecordType tags the kind of line a Record was parsed from.
type RecordType string

const (
	TypeProgress  RecordType = "progress"
	TypeTotalSize RecordType = "total_size"
	TypeFile      RecordType = "file"
	TypeNone      RecordType = ""
)

// Record is the parsed shape of one progress-stream line. Only the fields
// relevant to Type are populated.
type Record struct {
	Type RecordType

	// TypeProgress
	Bytes      int64
	Percent    int
	RateBps    float64
	ElapsedSec int

	// TypeTotalSize
	TotalBytes int64

	// TypeFile
	Path string
}

// progressRE matches a line like:
//
//	1,234,567  42%   12.34MB/s    0:00:12
var progressRE = regexp.MustCompile(
	`^\s*([\d,]+)\s+(\d+)%\s+([\d.]+)(KB|MB|GB)/s\s+(\d+):(\d+):(\d+)`,
)

var totalSizeRE = regexp.MustCompile(`^Total transferred file size:\s*([\d,]+)\s*bytes`)

var rateMultiplier = map[string]float64{
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
}

// Parse classifies one line of copy-tool output. Unrecognized lines yield
// a zero-value Record with Type == TypeNone; Parse never fails.
func Parse(line string) Record {
	if m := progressRE.FindStringSubmatch(line); m != nil {
		bytesVal, _ := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		percent, _ := strconv.Atoi(m[2])
		rateVal, _ := strconv.ParseFloat(m[3], 64)
		hh, _ := strconv.Atoi(m[5])
		mm, _ := strconv.Atoi(m[6])
		ss, _ := strconv.Atoi(m[7])

		return Record{
			Type:       TypeProgress,
			Bytes:      bytesVal,
			Percent:    percent,
			RateBps:    rateVal * rateMultiplier[m[4]],
			ElapsedSec: hh*3600 + mm*60 + ss,
		}
	}

	if m := totalSizeRE.FindStringSubmatch(line); m != nil {
		total, _ := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		return Record{Type: TypeTotalSize, TotalBytes: total}
	}

	trimmed := strings.TrimSpace(line)
	if trimmed != "" && !strings.HasPrefix(trimmed, "Total") && strings.Contains(trimmed, "/") {
		return Record{Type: TypeFile, Path: trimmed}
	}

	return Record{Type: TypeNone}
}
