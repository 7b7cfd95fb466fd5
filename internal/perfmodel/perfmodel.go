// Package perfmodel provides a static per-drive-class throughput table used
// to produce conservative initial ETA estimates before any real transfer
// rate history exists.
package perfmodel

// Class identifies a drive performance tier.
type Class string

const (
	Class7200RPMSATA Class = "7200_rpm_sata"
	Class5400RPMSATA Class = "5400_rpm_sata"
	ClassSSD         Class = "ssd"
	ClassNVMe        Class = "nvme"
	ClassDefault     Class = "default"
)

// Model holds raw throughput figures (MB/s) and a reliability factor in
// [0,1] used to derate them to real-world expectations.
type Model struct {
	Description        string
	SequentialReadMBps  float64
	SequentialWriteMBps float64
	RandomReadMBps      float64
	RandomWriteMBps     float64
	ReliabilityFactor   float64
}

var table = map[Class]Model{
	Class7200RPMSATA: {
		Description:         "Typical 7200 RPM SATA drive performance",
		SequentialReadMBps:  150,
		SequentialWriteMBps: 140,
		RandomReadMBps:      80,
		RandomWriteMBps:     75,
		ReliabilityFactor:   0.85,
	},
	Class5400RPMSATA: {
		Description:         "Typical 5400 RPM SATA drive performance",
		SequentialReadMBps:  100,
		SequentialWriteMBps: 95,
		RandomReadMBps:      50,
		RandomWriteMBps:     45,
		ReliabilityFactor:   0.80,
	},
	ClassSSD: {
		Description:         "Typical SSD performance",
		SequentialReadMBps:  500,
		SequentialWriteMBps: 450,
		RandomReadMBps:      400,
		RandomWriteMBps:     350,
		ReliabilityFactor:   0.90,
	},
	ClassNVMe: {
		Description:         "Typical NVMe SSD performance",
		SequentialReadMBps:  3000,
		SequentialWriteMBps: 2500,
		RandomReadMBps:      2000,
		RandomWriteMBps:     1800,
		ReliabilityFactor:   0.95,
	},
	ClassDefault: {
		Description:         "Conservative default performance model",
		SequentialReadMBps:  120,
		SequentialWriteMBps: 110,
		RandomReadMBps:      60,
		RandomWriteMBps:     55,
		ReliabilityFactor:   0.75,
	},
}

// Get returns the model for class, falling back to ClassDefault for an
// unknown tag.
func Get(class Class) Model {
	if m, ok := table[class]; ok {
		return m
	}
	return table[ClassDefault]
}

// ConservativeWriteRateMBps returns the reliability-derated sequential
// write rate further reduced by an additional 20% safety margin:
// reliability-derated sequential-write × 0.8.
func ConservativeWriteRateMBps(class Class) float64 {
	m := Get(class)
	return m.SequentialWriteMBps * m.ReliabilityFactor * 0.8
}

// DetectClass maps a capacity to a drive-class tag using a naive
// size-based heuristic: very large capacities are assumed 5400 RPM-class,
// small capacities are assumed SSD-class, else 7200 RPM-class.
func DetectClass(sizeBytes int64) Class {
	const gib = 1 << 30
	sizeGB := float64(sizeBytes) / gib

	switch {
	case sizeGB > 8000:
		return Class5400RPMSATA
	case sizeGB < 500:
		return ClassSSD
	default:
		return Class7200RPMSATA
	}
}

// Classes returns every known tag, for listing/display purposes.
func Classes() []Class {
	return []Class{Class7200RPMSATA, Class5400RPMSATA, ClassSSD, ClassNVMe, ClassDefault}
}
