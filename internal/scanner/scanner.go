// Package scanner decomposes the raw tree of a disk into allocation units —
// the move-as-a-unit directories or files the planner assigns to recipient
// disks.
package scanner

import (
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/pathutil"
)

// Unit is a movable subtree or single file identified by
// (share, relative_path, source_disk_name, size_bytes). Size is measured
// once, at scan time.
type Unit struct {
	Share      string
	RelPath    string // relative to the share root; "" means the whole share
	SourceDisk string
	SizeBytes  int64
}

// AbsPath returns the absolute source path of the unit under disksRoot.
func (u Unit) AbsPath(disksRoot string) string {
	parts := []string{disksRoot, u.SourceDisk, u.Share}
	if u.RelPath != "" {
		parts = append(parts, u.RelPath)
	}
	return filepath.Join(parts...)
}

// Key identifies a unit independent of its size, for transfer-state and
// orphan-detection lookups: (src_disk, share/rel_path).
func (u Unit) Key() (srcDisk, unitPath string) {
	if u.RelPath == "" {
		return u.SourceDisk, u.Share
	}
	return u.SourceDisk, u.Share + "/" + u.RelPath
}

// Options configures one scan of a disk.
type Options struct {
	UnitDepth     int // >=0
	IncludeShares map[string]bool
	ExcludeShares map[string]bool
	MinUnitSize   int64
	ExcludeGlobs  []string
}

// Scan lazily enumerates the allocation units of disk according to opts.
// Permission-denied or vanished entries are skipped silently.
func Scan(disk diskinv.Disk, opts Options, logger *slog.Logger) iter.Seq[Unit] {
	logger = logging.Subsys(logger, logging.SubsysScanner)

	return func(yield func(Unit) bool) {
		if !pathutil.IsDir(disk.MountPath) {
			return
		}
		entries, err := os.ReadDir(disk.MountPath)
		if err != nil {
			logger.Debug("cannot read disk root", "disk", disk.Name, "error", err)
			return
		}

		shares := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				shares = append(shares, e.Name())
			}
		}
		sort.Strings(shares)

		for _, share := range shares {
			if len(opts.IncludeShares) > 0 && !opts.IncludeShares[share] {
				continue
			}
			if opts.ExcludeShares[share] {
				continue
			}
			shareRoot := filepath.Join(disk.MountPath, share)

			if opts.UnitDepth == 0 {
				if matchesExclude(share, "", opts.ExcludeGlobs) {
					continue
				}
				size, sizeErr := pathutil.DirSize(shareRoot)
				if sizeErr != nil {
					logger.Debug("du failed", "path", shareRoot, "error", sizeErr)
					continue
				}
				if size < opts.MinUnitSize {
					continue
				}
				if !yield(Unit{Share: share, RelPath: "", SourceDisk: disk.Name, SizeBytes: size}) {
					return
				}
				continue
			}

			cont := true
			genCandidates(shareRoot, opts.UnitDepth, logger)(func(cand string) bool {
				rel := ""
				if cand != shareRoot {
					r, relErr := filepath.Rel(shareRoot, cand)
					if relErr != nil {
						return true
					}
					rel = r
				}
				if matchesExclude(share, rel, opts.ExcludeGlobs) {
					return true
				}
				size, sizeErr := pathutil.DirSize(cand)
				if sizeErr != nil {
					logger.Debug("du failed", "path", cand, "error", sizeErr)
					return true
				}
				if size < opts.MinUnitSize {
					return true
				}
				if !yield(Unit{Share: share, RelPath: rel, SourceDisk: disk.Name, SizeBytes: size}) {
					cont = false
					return false
				}
				return true
			})
			if !cont {
				return
			}
		}
	}
}

// genCandidates walks root to exactly `depth` levels, yielding a path for
// every directory reached at depth 0 and every plain file reached while
// depth==1 (its last descendable level). Directories encountered before
// depth==1 are always descended into, never yielded themselves; a file
// encountered before depth==1 is skipped entirely (it cannot be descended
// and isn't yet at the target level) — this mirrors the reference
// implementation's candidate generator exactly, including that quirk.
func genCandidates(root string, depth int, logger *slog.Logger) iter.Seq[string] {
	return func(yield func(string) bool) {
		var walk func(path string, depth int) bool
		walk = func(path string, depth int) bool {
			if depth == 0 {
				return yield(path)
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				logger.Debug("cannot read directory", "path", path, "error", err)
				return true
			}
			for _, e := range entries {
				childPath := filepath.Join(path, e.Name())
				if e.IsDir() {
					if !walk(childPath, depth-1) {
						return false
					}
					continue
				}
				if depth == 1 {
					if !yield(childPath) {
						return false
					}
				}
			}
			return true
		}
		walk(root, depth)
	}
}

func matchesExclude(share, rel string, globs []string) bool {
	if len(globs) == 0 {
		return false
	}
	candidate := share
	if rel != "" {
		candidate = share + "/" + rel
	}
	for _, g := range globs {
		if ok, _ := filepath.Match(g, candidate); ok {
			return true
		}
		// Also match the glob against the path relative to the share, so
		// patterns like "Downloads" or "*/Downloads" work without naming the
		// share. Deeper path components are not matched on their own.
		if ok, _ := filepath.Match(g, strings.TrimPrefix(candidate, share+"/")); ok {
			return true
		}
	}
	return false
}
