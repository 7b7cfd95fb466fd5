// Package diskinv enumerates the data disks of the array: one entry per
// /<disks_root>/diskN directory that statfs can read, in natural
// lexicographic order. Whether the directory is a separate mount point is
// not checked.
package diskinv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/pathutil"
)

// Disk is an immutable snapshot of one data disk's identity and fill level
// at scan time, for the duration of one planning cycle.
type Disk struct {
	Name       string // e.g. "disk3"
	MountPath  string
	TotalBytes int64
	UsedBytes  int64
	FreeBytes  int64
}

// FillPercent returns the disk's used/total ratio as a percentage, or 0 for
// a zero-capacity disk.
func (d Disk) FillPercent() float64 {
	if d.TotalBytes <= 0 {
		return 0
	}
	return float64(d.UsedBytes) / float64(d.TotalBytes) * 100
}

var diskNameRE = regexp.MustCompile(`^disk(\d+)$`)

// Options controls which disks Discover returns.
type Options struct {
	DisksRoot string          // default "/mnt"
	Include   map[string]bool // nil or empty means "no include filter"
	Exclude   map[string]bool
}

// Discover enumerates directories under opts.DisksRoot matching
// disk<N> that pathutil.Statfs reports as mounted, ordered by the
// natural numeric order of N. A plain directory that is not a separate
// mount point is returned too.
func Discover(opts Options, logger *slog.Logger) ([]Disk, error) {
	logger = logging.Subsys(logger, logging.SubsysDiskInv)
	root := opts.DisksRoot
	if root == "" {
		root = "/mnt"
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("diskinv: read %s: %w", root, err)
	}

	type candidate struct {
		name string
		num  int
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := diskNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if len(opts.Include) > 0 && !opts.Include[e.Name()] {
			continue
		}
		if opts.Exclude[e.Name()] {
			continue
		}
		num, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		candidates = append(candidates, candidate{name: e.Name(), num: num})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].num < candidates[j].num })

	disks := make([]Disk, 0, len(candidates))
	for _, c := range candidates {
		mountPath := filepath.Join(root, c.name)
		status, statErr := pathutil.Statfs(mountPath)
		if statErr != nil {
			logger.Warn("statfs failed, skipping disk", "disk", c.name, "error", statErr)
			continue
		}
		if !status.Mounted {
			logger.Debug("disk not mounted, skipping", "disk", c.name)
			continue
		}
		disks = append(disks, Disk{
			Name:       c.name,
			MountPath:  mountPath,
			TotalBytes: status.TotalBytes,
			UsedBytes:  status.UsedBytes,
			FreeBytes:  status.FreeBytes,
		})
	}

	return disks, nil
}
