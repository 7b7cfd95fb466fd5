package rsyncprogress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProgressLine(t *testing.T) {
	r := Parse("  1,234,567  42%   12.34MB/s    0:01:05")
	assert.Equal(t, TypeProgress, r.Type)
	assert.EqualValues(t, 1234567, r.Bytes)
	assert.Equal(t, 42, r.Percent)
	assert.InDelta(t, 12.34*1024*1024, r.RateBps, 1)
	assert.Equal(t, 65, r.ElapsedSec)
}

func TestParseTotalSizeLine(t *testing.T) {
	r := Parse("Total transferred file size: 9,999 bytes")
	assert.Equal(t, TypeTotalSize, r.Type)
	assert.EqualValues(t, 9999, r.TotalBytes)
}

func TestParseFileLine(t *testing.T) {
	r := Parse("movies/Inception/file.mkv")
	assert.Equal(t, TypeFile, r.Type)
	assert.Equal(t, "movies/Inception/file.mkv", r.Path)
}

func TestParseUnrecognizedLineReturnsZeroValue(t *testing.T) {
	r := Parse("sending incremental file list")
	assert.Equal(t, TypeNone, r.Type)
}

func TestParseEmptyLine(t *testing.T) {
	r := Parse("")
	assert.Equal(t, TypeNone, r.Type)
}

func TestParseNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Parse("garbage %%% !!! \x00")
	})
}
