// Package tui is the interactive terminal front end of the job controller.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/controller"
	"scrapectl/internal/job"
	"scrapectl/internal/retrieve"
	"scrapectl/internal/ui"
)

// Controller is the part of the job controller the form drives.
type Controller interface {
	Submit(ctx context.Context, p job.Params) error
	Cancel(ctx context.Context) (bool, error)
	Snapshot() job.Job
	Subscribe(l controller.Listener) func()
}

// Form fields in focus order.
const (
	fieldSite = iota
	fieldTitle
	fieldLocation
	fieldPages
	fieldFormat
	fieldCount
)

var fieldNames = [fieldCount]string{"site", "title", "location", "pages", "format"}

var formats = []job.Format{job.FormatExcel, job.FormatJSON}

// callTimeout bounds the local Submit/Cancel calls, which only wait for the
// controller loop.
const callTimeout = 5 * time.Second

// Messages
type jobChangedMsg struct{}

type submitDoneMsg struct{ err error }

type cancelDoneMsg struct {
	started bool
	err     error
}

type savedMsg struct {
	jobID string
	path  string
	err   error
}

// Model is the Bubble Tea model for the search form and job progress.
type Model struct {
	ctrl      Controller
	outputDir string

	site     int
	format   int
	title    textinput.Model
	location textinput.Model
	pages    textinput.Model
	focus    int

	spinner spinner.Model
	job     job.Job
	changes chan struct{}
	unsub   func()

	err      error
	errField string
	saved    map[string]string // jobID -> path
	saveErr  error
}

// New creates the form. Completed artifacts are written to outputDir.
func New(ctrl Controller, outputDir string, defaultFormat job.Format) *Model {
	title := textinput.New()
	title.Placeholder = "e.g. desarrollador go"
	title.CharLimit = 200
	title.Width = 40

	location := textinput.New()
	location.Placeholder = "e.g. lima"
	location.CharLimit = 200
	location.Width = 40

	pages := textinput.New()
	pages.Placeholder = "1"
	pages.CharLimit = 2
	pages.Width = 4
	pages.SetValue("1")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = toneStyles[ui.ToneBusy]

	m := &Model{
		ctrl:      ctrl,
		outputDir: outputDir,
		title:     title,
		location:  location,
		pages:     pages,
		spinner:   sp,
		job:       ctrl.Snapshot(),
		changes:   make(chan struct{}, 1),
		saved:     make(map[string]string),
	}
	for i, f := range formats {
		if f == defaultFormat {
			m.format = i
		}
	}

	// The listener only signals; the model re-reads the snapshot, so a
	// coalesced signal never loses state.
	m.unsub = ctrl.Subscribe(func(controller.Event) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange())
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return jobChangedMsg{}
	}
}

// Effects returns the affordances for the job on screen.
func (m *Model) Effects() ui.Effects {
	return ui.RenderJob(m.job)
}

// Params returns the form contents as submission parameters.
func (m *Model) Params() (job.Params, error) {
	p := job.Params{
		Site:     job.Sites[m.site],
		Title:    m.title.Value(),
		Location: m.location.Value(),
		Format:   formats[m.format],
	}
	raw := strings.TrimSpace(m.pages.Value())
	if raw == "" {
		raw = "1"
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return p, apperrors.Validation("pages", "pages must be a number")
	}
	p.Pages = n
	return p, nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case jobChangedMsg:
		m.job = m.ctrl.Snapshot()
		return m, tea.Batch(m.saveIfCompleted(), m.waitForChange())

	case submitDoneMsg:
		m.err, m.errField = msg.err, apperrors.FieldOf(msg.err)
		m.job = m.ctrl.Snapshot()
		return m, nil

	case cancelDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		m.job = m.ctrl.Snapshot()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.saveErr = msg.err
			return m, nil
		}
		m.saved[msg.jobID] = msg.path
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, m.updateFocused(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	effects := m.Effects()

	switch msg.String() {
	case "ctrl+c", "esc":
		m.unsub()
		return m, tea.Quit
	case "tab", "down":
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case "shift+tab", "up":
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case "enter":
		if effects.SubmitDisabled {
			return m, nil
		}
		return m, m.submit()
	case "ctrl+x":
		if !effects.CancelEnabled {
			return m, nil
		}
		return m, m.cancel()
	}

	switch m.focus {
	case fieldSite:
		m.site = cycle(m.site, len(job.Sites), msg.String())
		return m, nil
	case fieldFormat:
		m.format = cycle(m.format, len(formats), msg.String())
		return m, nil
	}
	return m, m.updateFocused(msg)
}

func cycle(i, n int, key string) int {
	switch key {
	case "left", "h":
		return (i + n - 1) % n
	case "right", "l", " ":
		return (i + 1) % n
	}
	return i
}

func (m *Model) setFocus(f int) {
	m.focus = f
	m.title.Blur()
	m.location.Blur()
	m.pages.Blur()
	switch f {
	case fieldTitle:
		m.title.Focus()
	case fieldLocation:
		m.location.Focus()
	case fieldPages:
		m.pages.Focus()
	}
}

func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case fieldTitle:
		m.title, cmd = m.title.Update(msg)
	case fieldLocation:
		m.location, cmd = m.location.Update(msg)
	case fieldPages:
		m.pages, cmd = m.pages.Update(msg)
	}
	return cmd
}

func (m *Model) submit() tea.Cmd {
	p, err := m.Params()
	if err != nil {
		m.err, m.errField = err, apperrors.FieldOf(err)
		return nil
	}
	m.err, m.errField, m.saveErr = nil, "", nil

	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return submitDoneMsg{err: ctrl.Submit(ctx, p)}
	}
}

func (m *Model) cancel() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		started, err := ctrl.Cancel(ctx)
		return cancelDoneMsg{started: started, err: err}
	}
}

// saveIfCompleted writes a freshly completed artifact once.
func (m *Model) saveIfCompleted() tea.Cmd {
	j := m.job
	if j.State != job.StateCompleted || j.Artifact == nil || m.outputDir == "" {
		return nil
	}
	if _, done := m.saved[j.ID]; done {
		return nil
	}
	m.saved[j.ID] = ""

	dir, a := m.outputDir, j.Artifact
	return func() tea.Msg {
		path, err := retrieve.Save(dir, a)
		if err != nil {
			slog.Error("Failed to save artifact", "jobId", a.JobID, "error", err)
		}
		return savedMsg{jobID: a.JobID, path: path, err: err}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	effects := m.Effects()

	b.WriteString(renderTitle("Job search scraper"))
	b.WriteString(renderDivider(56))
	b.WriteString("\n\n")

	b.WriteString(m.renderRow(fieldSite, m.renderChoices(job.Sites, m.site)))
	b.WriteString(m.renderRow(fieldTitle, m.title.View()))
	b.WriteString(m.renderRow(fieldLocation, m.location.View()))
	b.WriteString(m.renderRow(fieldPages, m.pages.View()+mutedStyle.Render(fmt.Sprintf("  (%d-%d)", job.MinPages, job.MaxPages))))

	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	b.WriteString(m.renderRow(fieldFormat, m.renderChoices(names, m.format)))
	b.WriteString("\n")

	if m.err != nil && m.errField == "" {
		b.WriteString(fieldErrorStyle.Render(m.err.Error()) + "\n\n")
	}

	status := renderStatus(effects)
	if effects.ShowProgress {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status + "\n")

	if m.job.State == job.StatePolling {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("job %s · %d checks · next in %s", m.job.ID, m.job.Probes, m.job.Backoff)) + "\n")
	}
	if effects.ShowDownload && m.job.Artifact != nil {
		line := "artifact " + m.job.Artifact.Filename()
		if path := m.saved[m.job.ID]; path != "" {
			line = "saved to " + path
		}
		if m.job.Artifact.Rows != nil {
			line += fmt.Sprintf(" (%d rows)", len(m.job.Artifact.Rows))
		}
		b.WriteString(mutedStyle.Render(line) + "\n")
	}
	if m.saveErr != nil {
		b.WriteString(fieldErrorStyle.Render("save failed: "+m.saveErr.Error()) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help(effects)) + "\n")
	return b.String()
}

func (m *Model) renderRow(field int, value string) string {
	marker := "  "
	if m.focus == field {
		marker = selectedMarkerStyle.Render("→ ")
	}
	row := marker + fieldLabelStyle.Render(fieldNames[field]) + value + "\n"
	if m.err != nil && m.errField == fieldNames[field] {
		row += "  " + fieldErrorStyle.Render("  "+m.err.Error()) + "\n"
	}
	return row
}

func (m *Model) renderChoices(options []string, selected int) string {
	parts := make([]string, len(options))
	for i, o := range options {
		if i == selected {
			parts[i] = choiceStyle.Render(o)
		} else {
			parts[i] = mutedStyle.Render(o)
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) help(e ui.Effects) string {
	keys := []string{"tab: next field", "←/→: choose"}
	if !e.SubmitDisabled {
		keys = append(keys, "enter: search")
	}
	if e.CancelEnabled {
		keys = append(keys, "ctrl+x: cancel")
	}
	keys = append(keys, "esc: quit")
	return strings.Join(keys, " · ")
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, m *Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	m.unsub()
	return err
}
