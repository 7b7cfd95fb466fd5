// Package tui renders a live dashboard over a running rebalance: disk fill
// levels, active transfers, and an ETA. It is a pure view over
// internal/sysmonitor and internal/transferstate; it holds no rebalancing
// logic of its own and never mutates either collaborator.
package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/muesli/reflow/wordwrap"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/sizeunit"
	"github.com/samestrin/diskbalancer/internal/sysmonitor"
	"github.com/samestrin/diskbalancer/internal/transferstate"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	footStyle  = lipgloss.NewStyle().Faint(true)
)

const wrapWidth = 72

// Model is the dashboard's bubbletea model.
type Model struct {
	disks      []diskinv.Disk
	tracker    *transferstate.Tracker
	monitor    *sysmonitor.Monitor
	totalMoves int
	totalBytes int64
	bar        progress.Model
}

// New constructs a dashboard Model for one rebalance operation.
func New(disks []diskinv.Disk, totalMoves int, totalBytes int64, tracker *transferstate.Tracker, monitor *sysmonitor.Monitor) Model {
	return Model{
		disks:      disks,
		tracker:    tracker,
		monitor:    monitor,
		totalMoves: totalMoves,
		totalBytes: totalBytes,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh tick.
func (m Model) Init() (tea.Model, tea.Cmd) {
	return m, tick()
}

// Update refreshes on each tick and quits on 'q'/ctrl+c; the model holds no
// other mutable state since every value it renders is read fresh from the
// tracker and monitor each frame.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

// View renders disk fill levels, active transfers and the current ETA.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("rebalancer"))
	b.WriteString("\n\n")

	for _, d := range m.disks {
		fmt.Fprintf(&b, "%-8s %s %5.1f%%\n", d.Name, m.bar.ViewAs(d.FillPercent()/100), d.FillPercent())
	}
	b.WriteString("\n")

	active := m.tracker.Active()
	fmt.Fprintf(&b, "active transfers: %d\n", len(active))
	for _, r := range active {
		line := fmt.Sprintf("%s -> %s  %s  (%s)", r.SrcDisk, r.DstDisk, r.UnitPath, sizeunit.Bytes(r.SizeBytes))
		b.WriteString(wordwrap.String(line, wrapWidth))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if eta, ok := m.monitor.RealTimeETA(); ok {
		fmt.Fprintf(&b, "eta: %s\n", eta.Round(time.Second))
	} else {
		b.WriteString("eta: calculating\n")
	}

	b.WriteString("\n")
	b.WriteString(footStyle.Render("q to quit"))
	return b.String()
}

// Run starts the dashboard program, runs work concurrently, and exits the
// dashboard once work completes.
func Run(m Model, work func() error) error {
	p := tea.NewProgram(m)

	errCh := make(chan error, 1)
	go func() {
		errCh <- work()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-errCh
}
