// Package planner classifies disks into donors and recipients and greedily
// assigns donor units to recipients under capacity and safety constraints.
package planner

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/scanner"
)

// SafetyMarginBytes is always reserved on a recipient beyond the unit's
// own size before a move is assigned to it.
const SafetyMarginBytes int64 = 1 << 30 // 1 GiB

// Strategy orders donor units before assignment.
type Strategy string

const (
	StrategyBySize Strategy = "by-size"
	StrategyByFill Strategy = "by-fill"
)

// Mode selects how each disk's target used-bytes level is computed.
type Mode struct {
	// Fixed, when true, uses TargetPercent directly. Otherwise auto-even
	// mode computes the target from the average used bytes across disks,
	// capped by HeadroomPercent.
	Fixed           bool
	TargetPercent   float64
	HeadroomPercent float64
}

// Move pairs a Unit with the disk it should be relocated to.
type Move struct {
	Unit            scanner.Unit
	DestinationDisk string
}

// moveJSON is the flat wire shape a move plan persists as: one object per
// move rather than a nested Unit, so a saved plan reads naturally without
// needing the scanner package to interpret it.
type moveJSON struct {
	Share     string `json:"share"`
	RelPath   string `json:"rel_path"`
	SizeBytes int64  `json:"size_bytes"`
	SrcDisk   string `json:"src_disk"`
	DestDisk  string `json:"dest_disk"`
}

// MarshalJSON flattens Move into its wire shape.
func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal(moveJSON{
		Share:     m.Unit.Share,
		RelPath:   m.Unit.RelPath,
		SizeBytes: m.Unit.SizeBytes,
		SrcDisk:   m.Unit.SourceDisk,
		DestDisk:  m.DestinationDisk,
	})
}

// UnmarshalJSON reconstructs Move from its wire shape.
func (m *Move) UnmarshalJSON(data []byte) error {
	var w moveJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Unit = scanner.Unit{
		Share:      w.Share,
		RelPath:    w.RelPath,
		SourceDisk: w.SrcDisk,
		SizeBytes:  w.SizeBytes,
	}
	m.DestinationDisk = w.DestDisk
	return nil
}

// Summary totals a Plan's moves.
type Summary struct {
	TotalMoves int   `json:"total_moves"`
	TotalBytes int64 `json:"total_bytes"`
}

// Plan is an ordered sequence of moves plus a summary.
type Plan struct {
	Moves   []Move  `json:"moves"`
	Summary Summary `json:"summary"`

	// OrphanedKeys holds the (src_disk, unit_path) keys Build found active
	// in OrphanSource but absent from the current disk scan. It is
	// recomputed against live transfer state on every Build call and is
	// never persisted as part of a saved plan.
	OrphanedKeys [][2]string `json:"-"`
}

// OrphanSource is the minimal view the planner needs of the transfer-state
// tracker to surface orphaned transfers for the executor to clean up; it is
// optional (a nil view simply means no orphan check is performed).
type OrphanSource interface {
	// Orphans returns the (src_disk, unit_path) keys of in-progress
	// transfer records that are not present in currentPlanKeys.
	Orphans(currentPlanKeys map[[2]string]bool) [][2]string
}

// disk classification, computed once per Build call.
type classified struct {
	disk      diskinv.Disk
	target    int64
	remaining int64 // deficit for donors, capacity for recipients
}

// Build classifies disks, orders donor units per strategy, and greedily
// assigns them to recipients. The result is deterministic given the same
// disks, units, mode and strategy.
func Build(disks []diskinv.Disk, units []scanner.Unit, mode Mode, strategy Strategy, orphans OrphanSource, logger *slog.Logger) Plan {
	logger = logging.Subsys(logger, logging.SubsysPlanner)

	donors, recipients := classify(disks, mode)

	donorUnits := unitsOnDonors(units, donors)
	orderUnits(donorUnits, donors, strategy)

	assignedToRecipient := make(map[string]int64, len(recipients))
	freeSnapshot := make(map[string]int64, len(recipients))
	for _, r := range recipients {
		freeSnapshot[r.disk.Name] = r.disk.FreeBytes
	}

	var moves []Move
	var totalBytes int64

	for _, u := range donorUnits {
		dest := pickRecipient(recipients, assignedToRecipient, freeSnapshot, u)
		if dest == "" {
			logger.Debug("no recipient fits unit, dropping", "share", u.Share, "rel_path", u.RelPath, "size", u.SizeBytes)
			continue
		}
		moves = append(moves, Move{Unit: u, DestinationDisk: dest})
		assignedToRecipient[dest] += u.SizeBytes
		totalBytes += u.SizeBytes

		for i := range donors {
			if donors[i].disk.Name == u.SourceDisk {
				donors[i].remaining -= u.SizeBytes
			}
		}
		for i := range recipients {
			if recipients[i].disk.Name == dest {
				recipients[i].remaining -= u.SizeBytes
			}
		}
	}

	plan := Plan{
		Moves: moves,
		Summary: Summary{
			TotalMoves: len(moves),
			TotalBytes: totalBytes,
		},
	}

	if orphans != nil {
		keys := make(map[[2]string]bool, len(units))
		for _, u := range units {
			src, path := u.Key()
			keys[[2]string{src, path}] = true
		}
		plan.OrphanedKeys = orphans.Orphans(keys)
	}

	return plan
}

func classify(disks []diskinv.Disk, mode Mode) (donors, recipients []classified) {
	var totalUsed int64
	for _, d := range disks {
		totalUsed += d.UsedBytes
	}
	n := len(disks)

	for _, d := range disks {
		var target int64
		if mode.Fixed {
			target = int64(float64(d.TotalBytes) * mode.TargetPercent / 100)
			if target > d.TotalBytes {
				target = d.TotalBytes
			}
		} else {
			var avgUsed int64
			if n > 0 {
				avgUsed = totalUsed / int64(n)
			}
			cap := int64(float64(d.TotalBytes) * (1 - mode.HeadroomPercent/100))
			target = avgUsed
			if target > cap {
				target = cap
			}
		}

		switch {
		case d.UsedBytes > target:
			donors = append(donors, classified{disk: d, target: target, remaining: d.UsedBytes - target})
		case d.UsedBytes < target:
			recipients = append(recipients, classified{disk: d, target: target, remaining: target - d.UsedBytes})
		}
	}
	return donors, recipients
}

func unitsOnDonors(units []scanner.Unit, donors []classified) []scanner.Unit {
	donorNames := make(map[string]bool, len(donors))
	for _, d := range donors {
		donorNames[d.disk.Name] = true
	}
	var out []scanner.Unit
	for _, u := range units {
		if donorNames[u.SourceDisk] {
			out = append(out, u)
		}
	}
	return out
}

func orderUnits(units []scanner.Unit, donors []classified, strategy Strategy) {
	fillByDisk := make(map[string]float64, len(donors))
	for _, d := range donors {
		fillByDisk[d.disk.Name] = d.disk.FillPercent()
	}

	switch strategy {
	case StrategyByFill:
		sort.SliceStable(units, func(i, j int) bool {
			fi, fj := fillByDisk[units[i].SourceDisk], fillByDisk[units[j].SourceDisk]
			if fi != fj {
				return fi > fj
			}
			return units[i].SizeBytes > units[j].SizeBytes
		})
	default: // StrategyBySize
		sort.SliceStable(units, func(i, j int) bool {
			return units[i].SizeBytes > units[j].SizeBytes
		})
	}
}

// pickRecipient returns the name of the recipient with the largest
// remaining capacity into which u fits, honoring the safety margin, or ""
// if none fits.
func pickRecipient(recipients []classified, assigned map[string]int64, freeSnapshot map[string]int64, u scanner.Unit) string {
	best := ""
	var bestRemaining int64 = -1

	for _, r := range recipients {
		if r.disk.Name == u.SourceDisk {
			continue
		}
		freeLeft := freeSnapshot[r.disk.Name] - assigned[r.disk.Name]
		if u.SizeBytes+SafetyMarginBytes > freeLeft {
			continue
		}
		if r.remaining > bestRemaining {
			bestRemaining = r.remaining
			best = r.disk.Name
		}
	}
	return best
}
