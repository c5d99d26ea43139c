package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/controller"
	"scrapectl/internal/job"
)

type fakeController struct {
	mu        sync.Mutex
	job       job.Job
	submitted []job.Params
	cancels   int
	listeners []controller.Listener
}

func (f *fakeController) Submit(ctx context.Context, p job.Params) error {
	p = job.Normalize(p, job.FormatExcel)
	if err := job.Validate(p); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, p)
	f.job = job.Job{State: job.StateSubmitting, Params: p}
	return nil
}

func (f *fakeController) Cancel(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return true, nil
}

func (f *fakeController) Snapshot() job.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job
}

func (f *fakeController) Subscribe(l controller.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	return func() {}
}

func (f *fakeController) set(j job.Job) {
	f.mu.Lock()
	f.job = j
	listeners := append([]controller.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range listeners {
		l(controller.Event{Kind: controller.Transition, Job: j})
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+x":
		return tea.KeyMsg{Type: tea.KeyCtrlX}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg to the model and runs the resulting command once.
func press(t *testing.T, m *Model, msg tea.Msg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestModel_SubmitComputrabajoRequiresTitle(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{job: job.Job{State: job.StateIdle}}
	m := New(ctrl, "", job.FormatExcel)

	// Site: bumeran -> zonajobs -> computrabajo.
	press(t, m, key("right"))
	press(t, m, key("right"))

	msg := press(t, m, key("enter"))
	done, ok := msg.(submitDoneMsg)
	if !ok {
		t.Fatalf("expected submitDoneMsg, got %T", msg)
	}
	m.Update(done)

	if m.errField != "title" {
		t.Errorf("expected title error, got field %q (%v)", m.errField, m.err)
	}
	if !strings.Contains(m.View(), "title is required") {
		t.Error("validation message not rendered")
	}
	if len(ctrl.submitted) != 0 {
		t.Error("invalid form must not be submitted")
	}
}

func TestModel_SubmitAndProgress(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{job: job.Job{State: job.StateIdle}}
	m := New(ctrl, "", job.FormatJSON)

	press(t, m, key("tab"))
	for _, r := range "go" {
		m.Update(key(string(r)))
	}
	m.Update(press(t, m, key("enter")))

	if len(ctrl.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(ctrl.submitted))
	}
	p := ctrl.submitted[0]
	if p.Site != job.SiteBumeran || p.Title != "go" || p.Pages != 1 || p.Format != job.FormatJSON {
		t.Errorf("unexpected params: %+v", p)
	}
	if !m.Effects().SubmitDisabled {
		t.Error("submit must be locked while the job is live")
	}

	// A second enter while live is ignored.
	if msg := press(t, m, key("enter")); msg != nil {
		t.Errorf("expected no command while live, got %T", msg)
	}

	ctrl.set(job.Job{ID: "j1", State: job.StatePolling, Params: p, Probes: 2})
	m.Update(jobChangedMsg{})
	if !strings.Contains(m.View(), "job j1") {
		t.Error("polling details not rendered")
	}

	if _, ok := press(t, m, key("ctrl+x")).(cancelDoneMsg); !ok {
		t.Fatal("ctrl+x should cancel a live job")
	}
	if ctrl.cancels != 1 {
		t.Errorf("expected one cancel, got %d", ctrl.cancels)
	}
}

func TestModel_InvalidPages(t *testing.T) {
	t.Parallel()
	m := New(&fakeController{}, "", job.FormatExcel)
	m.pages.SetValue("x")

	if _, err := m.Params(); apperrors.FieldOf(err) != "pages" {
		t.Errorf("expected pages error, got %v", err)
	}
}

func TestModel_SavesCompletedArtifactOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctrl := &fakeController{}
	m := New(ctrl, dir, job.FormatExcel)

	ctrl.set(job.Job{
		ID:       "j7",
		State:    job.StateCompleted,
		Partial:  true,
		Artifact: &job.Artifact{JobID: "j7", Format: job.FormatExcel, Data: []byte("PK"), Partial: true},
	})

	_, cmd := m.Update(jobChangedMsg{})
	if cmd == nil {
		t.Fatal("expected a save command")
	}
	// The batch holds the save and the next wait; run the save directly.
	saved, ok := m.saveCmdResult(t)
	if !ok {
		t.Fatal("artifact was not saved")
	}
	m.Update(saved)

	want := filepath.Join(dir, "j7_parcial.xlsx")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}
	if !strings.Contains(m.View(), "saved to "+want) {
		t.Error("saved path not rendered")
	}
	if m.saveIfCompleted() != nil {
		t.Error("artifact must be saved only once")
	}
}

// saveCmdResult re-runs the save for the job on screen.
func (m *Model) saveCmdResult(t *testing.T) (savedMsg, bool) {
	t.Helper()
	delete(m.saved, m.job.ID)
	cmd := m.saveIfCompleted()
	if cmd == nil {
		return savedMsg{}, false
	}
	msg, ok := cmd().(savedMsg)
	return msg, ok && msg.err == nil
}
