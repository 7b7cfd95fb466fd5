// Package sysmonitor runs a cooperative background sampler over one
// operation, recording host resource usage and producing ETA estimates
// from tracked transfer rates.
package sysmonitor

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/montanaflynn/stats"
	"github.com/samestrin/diskbalancer/internal/chainlock"
	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/perfmodel"
)

// Sample is one point-in-time host reading bound to an operation.
type Sample struct {
	OperationID string
	Timestamp   time.Time
	CPUPercent  float64
	MemPercent  float64
	ReadBps     float64
	WriteBps    float64
	NetSendBps  float64
	NetRecvBps  float64
}

// SampleSink receives samples as they are produced; implementations
// typically persist them via the metrics store.
type SampleSink interface {
	StoreSample(ctx context.Context, s Sample)
}

// transferRecord is one completed transfer's rate, weighted more heavily
// the more recently it finished.
type transferRecord struct {
	rateBps  float64
	finished time.Time
}

// Monitor is the background sampler and ETA tracker for one operation.
type Monitor struct {
	operationID string
	interval    time.Duration
	sink        SampleSink
	logger      *slog.Logger

	mu              *chainlock.L
	history         []transferRecord
	remainingBytes  int64
	startTime       time.Time
	endTime         time.Time
	lastCPUTotal    uint64
	lastCPUIdle     uint64
	lastDiskRead    uint64
	lastDiskWrite   uint64
	lastNetSend     uint64
	lastNetRecv     uint64
	lastSampleAt    time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Monitor for operationID, sampling every interval (a
// zero interval defaults to one second).
func New(operationID string, interval time.Duration, sink SampleSink, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		operationID: operationID,
		interval:    interval,
		sink:        sink,
		logger:      logging.Subsys(logger, logging.SubsysMonitor),
		mu:          chainlock.NewL(),
	}
}

// Start spawns the sampler goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.startTime = time.Now()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleOnce(ctx)
			}
		}
	}()
}

// Stop joins the sampler and records the operation's end time.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	defer m.mu.Lock().Unlock()
	m.endTime = time.Now()
}

// sampleOnce reads every host metric concurrently via errgroup and emits
// a Sample to the sink.
func (m *Monitor) sampleOnce(ctx context.Context) {
	var cpu, mem float64
	var readBps, writeBps, netSendBps, netRecvBps float64

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { cpu = m.sampleCPU(); return nil })
	g.Go(func() error { mem = sampleMem(); return nil })
	g.Go(func() error { readBps, writeBps = m.sampleDiskIO(); return nil })
	g.Go(func() error { netSendBps, netRecvBps = m.sampleNet(); return nil })
	_ = g.Wait() // every sampler is best-effort and never returns an error

	sample := Sample{
		OperationID: m.operationID,
		Timestamp:   time.Now(),
		CPUPercent:  cpu,
		MemPercent:  mem,
		ReadBps:     readBps,
		WriteBps:    writeBps,
		NetSendBps:  netSendBps,
		NetRecvBps:  netRecvBps,
	}
	if m.sink != nil {
		m.sink.StoreSample(ctx, sample)
	}
}

// InitialETA estimates total transfer duration from totalBytes and a
// conservative write rate for driveClass. Falls back to a fixed
// conservative floor when the class is unrecognized.
func InitialETA(totalBytes int64, driveClass perfmodel.Class) time.Duration {
	rateMBps := perfmodel.ConservativeWriteRateMBps(driveClass)
	if rateMBps <= 0 {
		rateMBps = perfmodel.ConservativeWriteRateMBps(perfmodel.ClassDefault)
	}
	rateBps := rateMBps * 1024 * 1024
	if rateBps <= 0 {
		return 0
	}
	seconds := float64(totalBytes) / rateBps
	return time.Duration(seconds * float64(time.Second))
}

// RecordTransferCompletion folds a just-finished transfer's rate into the
// weighted history used by RealTimeETA, and reduces the tracked remaining
// bytes.
func (m *Monitor) RecordTransferCompletion(rateBps float64, transferredBytes int64, finished time.Time) {
	defer m.mu.Lock().Unlock()
	m.history = append(m.history, transferRecord{rateBps: rateBps, finished: finished})
	m.remainingBytes -= transferredBytes
}

// SetRemainingBytes seeds or resets the remaining-bytes counter, e.g. at
// plan-load time.
func (m *Monitor) SetRemainingBytes(n int64) {
	defer m.mu.Lock().Unlock()
	m.remainingBytes = n
}

// RealTimeETA computes a weighted moving average over recent completed
// transfers (more recent transfers weighted higher), then divides
// remaining bytes by that rate. Returns (0, false) when remaining <= 0 or
// no transfer history exists yet.
func (m *Monitor) RealTimeETA() (time.Duration, bool) {
	defer m.mu.Lock().Unlock()
	if m.remainingBytes <= 0 || len(m.history) == 0 {
		return 0, false
	}

	rates := make(stats.Float64Data, len(m.history))
	weights := make(stats.Float64Data, len(m.history))
	for i, r := range m.history {
		rates[i] = r.rateBps
		// linearly increasing weight by recency: the most recent transfer
		// gets the largest weight, monotonically decreasing for older ones.
		weights[i] = float64(i + 1)
	}

	weighted, err := stats.WeightedMean(rates, weights)
	if err != nil || weighted <= 0 {
		return 0, false
	}

	seconds := float64(m.remainingBytes) / weighted
	return time.Duration(seconds * float64(time.Second)), true
}

func (m *Monitor) sampleCPU() float64 {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, _ := strconv.ParseUint(f, 10, 64)
		total += v
		if i == 3 { // idle field
			idle = v
		}
	}

	defer m.mu.Lock().Unlock()
	prevTotal, prevIdle := m.lastCPUTotal, m.lastCPUIdle
	m.lastCPUTotal, m.lastCPUIdle = total, idle

	deltaTotal := total - prevTotal
	deltaIdle := idle - prevIdle
	if prevTotal == 0 || deltaTotal == 0 {
		return 0
	}
	return 100 * (1 - float64(deltaIdle)/float64(deltaTotal))
}

func sampleMem() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		val, _ := strconv.ParseUint(fields[1], 10, 64)
		switch fields[0] {
		case "MemTotal:":
			total = val
		case "MemAvailable:":
			available = val
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * (1 - float64(available)/float64(total))
}

func (m *Monitor) sampleDiskIO() (readBps, writeBps float64) {
	readSectors, writeSectors, ok := readDiskstats()
	if !ok {
		return 0, 0
	}

	defer m.mu.Lock().Unlock()
	now := time.Now()
	elapsed := now.Sub(m.lastSampleAt).Seconds()
	prevRead, prevWrite := m.lastDiskRead, m.lastDiskWrite
	m.lastDiskRead, m.lastDiskWrite = readSectors, writeSectors

	if elapsed <= 0 || prevRead == 0 {
		m.lastSampleAt = now
		return 0, 0
	}
	m.lastSampleAt = now

	const sectorBytes = 512
	readBps = float64(readSectors-prevRead) * sectorBytes / elapsed
	writeBps = float64(writeSectors-prevWrite) * sectorBytes / elapsed
	return readBps, writeBps
}

// isPartitionName reports whether name looks like a disk partition
// (sda1, nvme0n1p1) rather than a whole disk (sda, nvme0n1) — a trailing
// digit run immediately after a non-digit, non-"n"-prefixed segment.
func isPartitionName(name string) bool {
	if name == "" {
		return false
	}
	last := name[len(name)-1]
	if last < '0' || last > '9' {
		return false
	}
	if strings.HasPrefix(name, "nvme") {
		return strings.Contains(name, "p")
	}
	return true
}

func readDiskstats() (readSectors, writeSectors uint64, ok bool) {
	f, err := os.Open("/proc/diskstats")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		name := fields[2]
		if strings.HasPrefix(name, "loop") || isPartitionName(name) {
			continue
		}
		rs, _ := strconv.ParseUint(fields[5], 10, 64)
		ws, _ := strconv.ParseUint(fields[9], 10, 64)
		readSectors += rs
		writeSectors += ws
		ok = true
	}
	return readSectors, writeSectors, ok
}

func (m *Monitor) sampleNet() (sendBps, recvBps float64) {
	send, recv, found := readNetDev()
	if !found {
		return 0, 0
	}

	defer m.mu.Lock().Unlock()
	now := time.Now()
	elapsed := now.Sub(m.lastSampleAt).Seconds()
	prevSend, prevRecv := m.lastNetSend, m.lastNetRecv
	m.lastNetSend, m.lastNetRecv = send, recv

	if elapsed <= 0 || prevSend == 0 {
		return 0, 0
	}
	return float64(send-prevSend) / elapsed, float64(recv-prevRecv) / elapsed
}

func readNetDev() (send, recv uint64, ok bool) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= 2 {
			continue // header lines
		}
		parts := strings.SplitN(scanner.Text(), ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		rx, _ := strconv.ParseUint(fields[0], 10, 64)
		tx, _ := strconv.ParseUint(fields[8], 10, 64)
		recv += rx
		send += tx
		ok = true
	}
	return send, recv, ok
}
