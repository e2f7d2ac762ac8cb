// Command logsentry-top is a terminal dashboard polling a running
// logsentry process's operational API: top active/error IPs, recent
// alerts, and memory/dispatch performance counters. Grounded on
// ftahirops-xtop's ui.Model/tea.NewProgram idiom (cmd/root.go,
// ui/app.go, ui/styles.go), generalized from a system-resource
// dashboard to this detector's operational snapshot.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorRed     = lipgloss.Color("#FF5555")
	colorGray    = lipgloss.Color("#6272A4")
	colorWhite   = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)
)

func tierColor(actionsThrottled, total uint64) lipgloss.Style {
	if total == 0 {
		return okStyle
	}
	ratio := float64(actionsThrottled) / float64(total)
	switch {
	case ratio > 0.5:
		return critStyle
	case ratio > 0.2:
		return warnStyle
	default:
		return okStyle
	}
}

type ipSummary struct {
	IP           string  `json:"IP"`
	RequestCount int64   `json:"RequestCount"`
	ErrorCount   int64   `json:"ErrorCount"`
	ErrorRate    float64 `json:"ErrorRate"`
	LastSeenMs   int64   `json:"LastSeenMs"`
}

type stateSnapshot struct {
	TopActiveIPs []ipSummary `json:"top_active_ips"`
	TopErrorIPs  []ipSummary `json:"top_error_ips"`
}

type alertView struct {
	ID            string  `json:"id"`
	TimestampMs   int64   `json:"timestamp_ms"`
	AlertReason   string  `json:"alert_reason"`
	DetectionTier string  `json:"detection_tier"`
	Action        string  `json:"suggested_action"`
	AnomalyScore  float64 `json:"anomaly_score"`
	SourceIP      string  `json:"source_ip"`
}

type performanceSnapshot struct {
	AlertsProcessed   uint64  `json:"alerts_processed"`
	AlertsThrottled   uint64  `json:"alerts_throttled"`
	MemoryUsageBytes  int64   `json:"memory_usage_bytes"`
	MemoryUtilization float64 `json:"memory_utilization"`
}

// client polls a logsentry operational API over plain HTTP GETs.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: baseURL, http: &http.Client{Timeout: 3 * time.Second}}
}

func (c *client) getJSON(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type tickMsg time.Time

type pollResult struct {
	state       *stateSnapshot
	alerts      []alertView
	performance *performanceSnapshot
	err         error
}

type model struct {
	client   *client
	interval time.Duration

	state       *stateSnapshot
	alerts      []alertView
	performance *performanceSnapshot
	lastErr     error
	lastPollAt  time.Time

	width, height int
}

func newModel(c *client, interval time.Duration) model {
	return model{client: c, interval: interval}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick(m.interval))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		var result pollResult

		var st stateSnapshot
		if err := m.client.getJSON("/api/v1/operations/state", &st); err != nil {
			result.err = err
		} else {
			result.state = &st
		}

		var alerts []alertView
		if err := m.client.getJSON("/api/v1/operations/alerts", &alerts); err == nil {
			result.alerts = alerts
		}

		var perf performanceSnapshot
		if err := m.client.getJSON("/api/v1/metrics/performance", &perf); err == nil {
			result.performance = &perf
		}

		return result
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		return m, tea.Batch(m.poll(), tick(m.interval))
	case pollResult:
		m.lastPollAt = time.Now()
		m.lastErr = msg.err
		if msg.state != nil {
			m.state = msg.state
		}
		if msg.alerts != nil {
			m.alerts = msg.alerts
		}
		if msg.performance != nil {
			m.performance = msg.performance
		}
	}
	return m, nil
}

func (m model) View() string {
	header := titleStyle.Render("logsentry-top") + "  " + labelStyle.Render(m.client.baseURL)
	if !m.lastPollAt.IsZero() {
		header += "  " + labelStyle.Render(m.lastPollAt.Format("15:04:05"))
	}
	if m.lastErr != nil {
		header += "  " + critStyle.Render("poll error: "+m.lastErr.Error())
	}

	sections := []string{header, ""}
	sections = append(sections, panelStyle.Render(m.renderPerformance()))
	sections = append(sections, panelStyle.Render(m.renderIPTable("Top Active IPs", ipsOrEmpty(m.state, true))))
	sections = append(sections, panelStyle.Render(m.renderIPTable("Top Error IPs", ipsOrEmpty(m.state, false))))
	sections = append(sections, panelStyle.Render(m.renderAlerts()))
	sections = append(sections, helpStyle.Render("q: quit   r: refresh now"))

	out := ""
	for _, s := range sections {
		out += s + "\n"
	}
	return out
}

func ipsOrEmpty(s *stateSnapshot, active bool) []ipSummary {
	if s == nil {
		return nil
	}
	if active {
		return s.TopActiveIPs
	}
	return s.TopErrorIPs
}

func (m model) renderPerformance() string {
	if m.performance == nil {
		return labelStyle.Render("performance: waiting for first poll...")
	}
	p := m.performance
	style := tierColor(p.AlertsThrottled, p.AlertsProcessed)
	return fmt.Sprintf(
		"%s %s    %s %s    %s %.1f%%",
		labelStyle.Render("alerts:"), valueStyle.Render(fmt.Sprintf("%d", p.AlertsProcessed)),
		labelStyle.Render("throttled:"), style.Render(fmt.Sprintf("%d", p.AlertsThrottled)),
		labelStyle.Render("mem util:"), p.MemoryUtilization*100,
	)
}

func (m model) renderIPTable(title string, rows []ipSummary) string {
	out := titleStyle.Render(title) + "\n"
	if len(rows) == 0 {
		return out + labelStyle.Render("  (no data)")
	}
	for i, r := range rows {
		if i >= 10 {
			break
		}
		out += fmt.Sprintf("  %-16s  req=%-6d  err=%-6d  rate=%.2f\n",
			r.IP, r.RequestCount, r.ErrorCount, r.ErrorRate)
	}
	return out
}

func (m model) renderAlerts() string {
	out := titleStyle.Render("Recent Alerts") + "\n"
	if len(m.alerts) == 0 {
		return out + labelStyle.Render("  (no data)")
	}
	for i, a := range m.alerts {
		if i >= 10 {
			break
		}
		style := okStyle
		switch a.Action {
		case "BLOCK", "RATE_LIMIT":
			style = critStyle
		case "MONITOR":
			style = warnStyle
		}
		out += fmt.Sprintf("  %-8s  %-15s  %-22s  %s\n",
			a.DetectionTier, a.SourceIP, a.AlertReason, style.Render(a.Action))
	}
	return out
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "logsentry operational API base URL")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	m := newModel(newClient(*addr), *interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "logsentry-top:", err)
		os.Exit(1)
	}
}
