package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/safes-dump/internal/services"
)

const maxLogs = 10

type Stage string

const (
	StageStarting Stage = "starting"
	StagePaging   Stage = "paging"
	StageComplete Stage = "complete"
	StageFailed   Stage = "failed"
)

type Model struct {
	endpoint   string
	pagination string
	pageSize   int
	stage      Stage
	pages      int
	safes      int
	lastCount  int
	cursor     string
	block      string
	result     *services.DumpResult
	err        error
	logs       []string
	spinner    spinner.Model
	started    time.Time
	elapsed    time.Duration
	width      int
	quit       bool
}

// PageUpdate carries one page event from the download goroutine
type PageUpdate struct {
	Event services.PageEvent
}

// BlockCaptured is sent when the block number the dump is labelled with is known
type BlockCaptured struct {
	BlockNumber string
}

type LogMessage struct {
	Message string
}

// DownloadFinished is sent once when the download goroutine returns
type DownloadFinished struct {
	Result *services.DumpResult
	Err    error
}

func NewModel(endpoint, pagination string, pageSize int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		endpoint:   endpoint,
		pagination: pagination,
		pageSize:   pageSize,
		stage:      StageStarting,
		logs:       []string{},
		spinner:    sp,
		started:    time.Now(),
		width:      80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case PageUpdate:
		m = m.handlePageUpdate(msg)

	case BlockCaptured:
		m.block = msg.BlockNumber
		m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("snapshot block %s", msg.BlockNumber)})

	case LogMessage:
		m = m.handleLogMessage(msg)

	case DownloadFinished:
		m = m.handleDownloadFinished(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handlePageUpdate(msg PageUpdate) Model {
	m.stage = StagePaging
	m.pages = msg.Event.Page
	m.safes = msg.Event.Total
	m.lastCount = msg.Event.Count
	m.cursor = msg.Event.Cursor.String()
	m.elapsed = time.Since(m.started)
	return m.handleLogMessage(LogMessage{
		Message: fmt.Sprintf("page %d (%s): %d safes in %v", msg.Event.Page, m.cursor, msg.Event.Count, msg.Event.Duration.Round(time.Millisecond)),
	})
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	return m
}

func (m Model) handleDownloadFinished(msg DownloadFinished) Model {
	m.elapsed = time.Since(m.started)
	m.result = msg.Result
	m.err = msg.Err
	if msg.Err != nil {
		m.stage = StageFailed
		return m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %v", msg.Err)})
	}
	m.stage = StageComplete
	if msg.Result != nil {
		m.safes = msg.Result.SafeCount
		if msg.Result.BlockNumber != "" {
			m.block = msg.Result.BlockNumber
		}
		return m.handleLogMessage(LogMessage{Message: fmt.Sprintf("✅ wrote %d safes to %s", msg.Result.SafeCount, msg.Result.OutputPath)})
	}
	return m
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("🔄 Safes Download Monitor"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	s.WriteString(summaryStyle.Render(fmt.Sprintf("%s | %s pagination | %d per page",
		truncate(m.endpoint, 60), m.pagination, m.pageSize)))
	s.WriteString("\n\n")

	statusStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(max(m.width-2, 20))

	var status strings.Builder
	icon := getStageIcon(m.stage)
	if m.stage == StageStarting || m.stage == StagePaging {
		icon = m.spinner.View()
	}
	stageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStageColor(m.stage)))
	status.WriteString(stageStyle.Render(fmt.Sprintf("%s %-10s", icon, m.stage)))
	status.WriteString("\n")
	status.WriteString(fmt.Sprintf("Pages: %d | Safes: %d | Last page: %d | Elapsed: %v\n",
		m.pages, m.safes, m.lastCount, m.elapsed.Round(time.Second)))
	if m.cursor != "" {
		status.WriteString(fmt.Sprintf("Cursor: %s\n", m.cursor))
	}
	if m.block != "" {
		status.WriteString(fmt.Sprintf("Block: %s\n", m.block))
	}
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		status.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	s.WriteString(statusStyle.Render(status.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(max(m.width-2, 20)).
		Height(maxLogs + 1)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Activity\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	s.WriteString(footerStyle.Render("Press 'q' to quit | Logs: logs/safes-dump_*.log"))

	return s.String()
}

func getStageIcon(stage Stage) string {
	switch stage {
	case StageComplete:
		return "✅"
	case StageFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func getStageColor(stage Stage) string {
	switch stage {
	case StageComplete:
		return "82"
	case StageFailed:
		return "196"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
