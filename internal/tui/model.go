package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/ports/tuiport"
)

// View represents the current view state
type View int

const (
	DatasetsView  View = iota
	SnapshotsView      // Snapshots of the selected dataset with retention decisions
	DiffView           // Changes since the selected snapshot
)

// Model is the main TUI model
type Model struct {
	svc      tuiport.TUIService
	config   *config.Config
	view     View
	width    int
	height   int
	quitting bool

	// Datasets view
	datasets        []tuiport.TUIDatasetInfo
	datasetCursor   int
	selectedDataset string

	// Snapshots view
	snapshots      []tuiport.TUISnapshotInfo
	snapshotCursor int

	// Diff view
	diffResult *DiffResult
	diffScroll int

	// Status message
	statusMsg string
	statusErr bool
}

// Key bindings
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Enter     key.Binding
	Back      key.Binding
	Replicate key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Replicate: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "replicate"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a new TUI model backed by the given service.
func NewModel(svc tuiport.TUIService) (*Model, error) {
	cfg, err := svc.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	m := &Model{
		svc:    svc,
		config: cfg,
		view:   DatasetsView,
	}

	if err := m.loadDatasets(); err != nil {
		return nil, err
	}

	return m, nil
}

// NewModelWithConfig creates a model with a pre-loaded config, for tests.
func NewModelWithConfig(cfg *config.Config, svc tuiport.TUIService) *Model {
	return &Model{
		svc:    svc,
		config: cfg,
		view:   DatasetsView,
	}
}

// loadDatasets loads all configured dataset pairs with their metadata
func (m *Model) loadDatasets() error {
	datasets, err := m.svc.ListDatasets(m.config)
	if err != nil {
		return err
	}
	m.datasets = datasets
	return nil
}

// loadSnapshots loads snapshots for the selected dataset
func (m *Model) loadSnapshots() error {
	snapshots, err := m.svc.ListSnapshots(m.config, m.selectedDataset)
	if err != nil {
		return err
	}
	m.snapshots = snapshots
	return nil
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.statusMsg = msg.msg
		m.statusErr = msg.err
		// Reload data to reflect changes
		_ = m.loadDatasets()
		if m.view == SnapshotsView {
			_ = m.loadSnapshots()
		}
		return m, nil

	case diffMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Diff failed: %v", msg.err)
			m.statusErr = true
		} else {
			m.diffResult = msg.result
			m.diffScroll = 0
			m.view = DiffView
			m.statusMsg = ""
		}
		return m, nil

	case tea.KeyMsg:
		// Clear status on any key
		m.statusMsg = ""
		m.statusErr = false

		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			m.moveCursor(-1)

		case key.Matches(msg, keys.Down):
			m.moveCursor(1)

		case key.Matches(msg, keys.Enter):
			if m.view == DatasetsView && len(m.datasets) > 0 {
				m.selectedDataset = m.datasets[m.datasetCursor].Source
				if err := m.loadSnapshots(); err != nil {
					m.statusMsg = fmt.Sprintf("Error: %v", err)
					m.statusErr = true
				} else {
					m.view = SnapshotsView
					m.snapshotCursor = 0
				}
			} else if m.view == SnapshotsView && len(m.snapshots) > 0 {
				return m, m.computeDiff(m.snapshots[m.snapshotCursor].Label)
			}

		case key.Matches(msg, keys.Back):
			switch m.view {
			case SnapshotsView:
				m.view = DatasetsView
				m.snapshots = nil
			case DiffView:
				m.view = SnapshotsView
				m.diffResult = nil
				m.diffScroll = 0
			}

		case key.Matches(msg, keys.Replicate):
			return m, m.runReplicate()
		}
	}

	return m, nil
}

func (m *Model) moveCursor(delta int) {
	switch m.view {
	case DatasetsView:
		m.datasetCursor += delta
		if m.datasetCursor < 0 {
			m.datasetCursor = 0
		}
		if m.datasetCursor >= len(m.datasets) {
			m.datasetCursor = len(m.datasets) - 1
		}
	case SnapshotsView:
		m.snapshotCursor += delta
		if m.snapshotCursor < 0 {
			m.snapshotCursor = 0
		}
		if m.snapshotCursor >= len(m.snapshots) {
			m.snapshotCursor = len(m.snapshots) - 1
		}
	case DiffView:
		if m.diffResult != nil {
			m.diffScroll += delta
			if m.diffScroll < 0 {
				m.diffScroll = 0
			}
			maxScroll := len(m.diffResult.Entries) - (m.height - 10)
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.diffScroll > maxScroll {
				m.diffScroll = maxScroll
			}
		}
	}
}

func (m *Model) runReplicate() tea.Cmd {
	var dataset string
	if m.view == DatasetsView && len(m.datasets) > 0 {
		dataset = m.datasets[m.datasetCursor].Source
	} else if m.view == SnapshotsView {
		dataset = m.selectedDataset
	}

	return func() tea.Msg {
		if dataset == "" {
			return statusMsg{err: true, msg: "No dataset selected"}
		}

		result := m.svc.Replicate(m.config, dataset)
		if result.Error != nil {
			return statusMsg{err: true, msg: fmt.Sprintf("Replication failed: %v", result.Error)}
		}
		if result.PrunedLocal > 0 {
			return statusMsg{msg: fmt.Sprintf("✓ Replicated %s @ %s (pruned %d)", dataset, result.Label, result.PrunedLocal)}
		}
		return statusMsg{msg: fmt.Sprintf("✓ Replicated %s @ %s", dataset, result.Label)}
	}
}

func (m *Model) computeDiff(label string) tea.Cmd {
	return func() tea.Msg {
		output, err := m.svc.Diff(m.config, m.selectedDataset, label)
		if err != nil {
			return diffMsg{err: err}
		}
		return diffMsg{result: ParseDiff(label, output)}
	}
}

type statusMsg struct {
	msg string
	err bool
}

type diffMsg struct {
	result *DiffResult
	err    error
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case DatasetsView:
		content = m.renderDatasetsView()
	case SnapshotsView:
		content = m.renderSnapshotsView()
	case DiffView:
		content = m.renderDiffView()
	}

	return appStyle.Render(content)
}

func (m *Model) renderDatasetsView() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render(" 🗄 zfsync ")
	b.WriteString(title)
	b.WriteString("\n\n")

	// Header
	header := fmt.Sprintf("  %-28s %-24s %9s %s",
		"SOURCE", "TARGET", "SNAPSHOTS", "LAST SNAPSHOT")
	b.WriteString(dimStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 78)))
	b.WriteString("\n")

	// List items
	visibleHeight := m.height - 10
	if visibleHeight < 5 {
		visibleHeight = 5
	}

	start := 0
	if m.datasetCursor >= visibleHeight {
		start = m.datasetCursor - visibleHeight + 1
	}

	for i := start; i < len(m.datasets) && i < start+visibleHeight; i++ {
		d := m.datasets[i]
		cursor := "  "
		style := normalStyle
		if i == m.datasetCursor {
			cursor = "▸ "
			style = selectedStyle
		}

		snapshots := fmt.Sprintf("%d", d.Snapshots)
		if d.Snapshots == 0 {
			snapshots = "-"
		}

		lastSnapshot := "-"
		if !d.LastSnapshot.IsZero() {
			lastSnapshot = relativeTime(d.LastSnapshot)
		}

		line := fmt.Sprintf("%s%-28s %-24s %9s %s",
			cursor, truncate(d.Source, 28), truncate(d.Target, 24), snapshots, lastSnapshot)
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	// Pad to fixed height
	for i := len(m.datasets); i < visibleHeight; i++ {
		b.WriteString("\n")
	}

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")

	// Help
	help := "[↑/↓] navigate  [enter] snapshots  [r] replicate  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderSnapshotsView() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render(fmt.Sprintf(" 🗄 %s ", m.selectedDataset))
	b.WriteString(title)
	b.WriteString("\n\n")

	if len(m.snapshots) == 0 {
		b.WriteString(dimStyle.Render("  No snapshots found"))
		b.WriteString("\n\n")
	} else {
		// Header
		header := fmt.Sprintf("  %-26s %-17s %s",
			"SNAPSHOT", "CREATED", "RETENTION")
		b.WriteString(dimStyle.Render(header))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Repeat("─", 64)))
		b.WriteString("\n")

		// List items
		visibleHeight := m.height - 10
		if visibleHeight < 5 {
			visibleHeight = 5
		}

		start := 0
		if m.snapshotCursor >= visibleHeight {
			start = m.snapshotCursor - visibleHeight + 1
		}

		for i := start; i < len(m.snapshots) && i < start+visibleHeight; i++ {
			s := m.snapshots[i]
			cursor := "  "
			style := normalStyle
			if !s.Keep {
				style = dimStyle
			}
			if i == m.snapshotCursor {
				cursor = "▸ "
				style = selectedStyle
			}

			retention := s.Tier
			if !s.Keep {
				retention = "prune"
			} else if retention == "" {
				retention = "keep"
			}

			created := "-"
			if !s.CreatedAt.IsZero() {
				created = s.CreatedAt.Format("2006-01-02 15:04")
			}

			line := fmt.Sprintf("%s%-26s %-17s %s",
				cursor, truncate(s.Label, 26), created, retention)
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
	}

	// Pad to fixed height
	visibleHeight := m.height - 10
	for i := len(m.snapshots); i < visibleHeight; i++ {
		b.WriteString("\n")
	}

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")

	// Help
	help := "[↑/↓] navigate  [enter] diff  [esc] back  [r] replicate  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderDiffView() string {
	var b strings.Builder

	if m.diffResult == nil {
		return "Loading..."
	}

	// Title
	title := titleStyle.Render(fmt.Sprintf(" 📊 %s@%s ", m.selectedDataset, m.diffResult.Label))
	b.WriteString(title)
	b.WriteString("\n\n")

	// Summary
	summary := fmt.Sprintf("  Added: %d   Modified: %d   Removed: %d   Renamed: %d",
		m.diffResult.Added, m.diffResult.Modified, m.diffResult.Removed, m.diffResult.Renamed)
	b.WriteString(dimStyle.Render(summary))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 70)))
	b.WriteString("\n")

	if len(m.diffResult.Entries) == 0 {
		b.WriteString(dimStyle.Render("  No changes since snapshot"))
		b.WriteString("\n")
	} else {
		visibleHeight := m.height - 10
		if visibleHeight < 5 {
			visibleHeight = 5
		}

		endIdx := m.diffScroll + visibleHeight
		if endIdx > len(m.diffResult.Entries) {
			endIdx = len(m.diffResult.Entries)
		}

		for i := m.diffScroll; i < endIdx; i++ {
			e := m.diffResult.Entries[i]

			path := e.Path
			if e.Change == 'R' && e.NewPath != "" {
				path = e.Path + " → " + e.NewPath
			}
			line := fmt.Sprintf("  %c %s", e.Change, path)

			switch e.Change {
			case '+':
				b.WriteString(addedStyle.Render(line))
			case '-':
				b.WriteString(deletedStyle.Render(line))
			case 'M':
				b.WriteString(modifiedStyle.Render(line))
			default:
				b.WriteString(dimStyle.Render(line))
			}
			b.WriteString("\n")
		}

		// Scroll indicator
		if len(m.diffResult.Entries) > visibleHeight {
			scrollInfo := fmt.Sprintf("  Entries %d-%d of %d",
				m.diffScroll+1, endIdx, len(m.diffResult.Entries))
			b.WriteString(dimStyle.Render(scrollInfo))
			b.WriteString("\n")
		}
	}

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")

	// Help
	help := "[↑/↓] scroll  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// Run starts the TUI
func Run(svc tuiport.TUIService) error {
	m, err := NewModel(svc)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// Helper functions
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func relativeTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
