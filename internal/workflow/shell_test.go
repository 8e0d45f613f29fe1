package workflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/backend/backendtest"
	"github.com/a3tai/pdf-playground/internal/logging"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

// recordingHost records what the workflow asked the host to show.
type recordingHost struct {
	mu     sync.Mutex
	tabs   []workflow.Link
	alerts []string
}

func (h *recordingHost) OpenTab(link workflow.Link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs = append(h.tabs, link)
}

func (h *recordingHost) Alert(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, message)
}

func (h *recordingHost) Tabs() []workflow.Link {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]workflow.Link(nil), h.tabs...)
}

func (h *recordingHost) Alerts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.alerts...)
}

type fixture struct {
	fake   *backendtest.Server
	client *backend.Client
	host   *recordingHost
	shell  *workflow.Shell
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := backendtest.New(t)
	client, err := backend.NewClient(fake.URL, backend.WithLogger(logging.Discard()))
	require.NoError(t, err)
	host := &recordingHost{}
	return &fixture{
		fake:   fake,
		client: client,
		host:   host,
		shell:  workflow.NewShell(client, host, workflow.WithLogger(logging.Discard())),
	}
}

func pdf(name string) workflow.LocalFile {
	return workflow.LocalFile{Name: name, Content: strings.NewReader("%PDF-1.7 " + name)}
}

func waitFields(t *testing.T, shell *workflow.Shell) workflow.FieldView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	view, err := shell.WaitForFields(ctx)
	require.NoError(t, err)
	return view
}

func TestShell_LastUploadWins(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		outcome := f.shell.Upload(context.Background(), pdf(name))
		require.True(t, outcome.OK(), outcome.Message())

		active, ok := f.shell.Active()
		require.True(t, ok)
		assert.Equal(t, name, active.ID)
		assert.Equal(t, name, active.LocalName)
	}
}

func TestShell_ClearUnmountsEverything(t *testing.T) {
	f := newFixture(t)

	// Clearing with nothing active is a no-op transition to "no file".
	f.shell.Clear()
	snap := f.shell.Snapshot()
	assert.Nil(t, snap.Active)

	f.fake.SetFields("a.pdf", backend.FormField{Name: "Name", Value: "Alice"})
	require.True(t, f.shell.Upload(context.Background(), pdf("a.pdf")).OK())
	waitFields(t, f.shell)

	snap = f.shell.Snapshot()
	require.NotNil(t, snap.Active)
	require.NotNil(t, snap.Fields)
	require.NotNil(t, snap.Fill)
	assert.NotEmpty(t, snap.OriginalURL)

	f.shell.Clear()

	snap = f.shell.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Nil(t, snap.Fields)
	assert.Nil(t, snap.Fill)
	assert.Empty(t, snap.OriginalURL)

	_, err := f.shell.Viewer()
	assert.ErrorIs(t, err, workflow.ErrNoActiveFile)
	_, err = f.shell.FillForm()
	assert.ErrorIs(t, err, workflow.ErrNoActiveFile)
}

func TestFieldViewer_Empty(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.shell.Upload(context.Background(), pdf("blank.pdf")).OK())

	view := waitFields(t, f.shell)
	assert.Equal(t, workflow.StatusEmpty, view.Status)
	assert.Equal(t, "PDF has no form fields.", view.Message)
	assert.Empty(t, view.Items)
}

func TestFieldViewer_SingleField(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFields("form.pdf", backend.FormField{Name: "Name", Value: "Alice"})
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())

	view := waitFields(t, f.shell)
	assert.Equal(t, workflow.StatusList, view.Status)
	assert.Equal(t, []string{"Name: Alice"}, view.Items)
	assert.Empty(t, view.Error)
}

func TestFieldViewer_Error(t *testing.T) {
	f := newFixture(t)
	f.fake.FailFields("bad.pdf", http.StatusInternalServerError, "bad file")
	require.True(t, f.shell.Upload(context.Background(), pdf("bad.pdf")).OK())

	view := waitFields(t, f.shell)
	assert.Equal(t, workflow.StatusError, view.Status)
	assert.Equal(t, "bad file", view.Error)
	assert.Empty(t, view.Items)
}

func TestFieldViewer_FallbackErrorWithoutBody(t *testing.T) {
	f := newFixture(t)
	f.fake.FailFields("silent.pdf", http.StatusBadGateway, "")
	require.True(t, f.shell.Upload(context.Background(), pdf("silent.pdf")).OK())

	view := waitFields(t, f.shell)
	assert.Equal(t, workflow.StatusError, view.Status)
	assert.Equal(t, workflow.FieldsFallbackError, view.Error)
}

func TestFieldViewer_ErrorClearedBySuccessfulReload(t *testing.T) {
	f := newFixture(t)
	f.fake.AddFile("form.pdf", []byte("x"), backend.FormField{Name: "Name", Value: "Alice"})
	f.fake.FailFields("form.pdf", http.StatusInternalServerError, "busy")
	f.shell.SetActiveFile("form.pdf")
	require.Equal(t, workflow.StatusError, waitFields(t, f.shell).Status)

	f.fake.RecoverFields("form.pdf")
	viewer, err := f.shell.Viewer()
	require.NoError(t, err)
	require.NoError(t, viewer.Load(context.Background()))

	view := viewer.View()
	assert.Equal(t, workflow.StatusList, view.Status)
	assert.Empty(t, view.Error)
	assert.Equal(t, []string{"Name: Alice"}, view.Items)
}

func TestFillForm_Submit(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFillResult(backend.FillResult{FinalPDF: "form_filled.pdf"})
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())

	form, err := f.shell.FillForm()
	require.NoError(t, err)
	form.SetName("Name")
	form.SetValue("Alice")

	result, err := form.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "form_filled.pdf", result.FinalPDF)

	require.Equal(t, 1, f.fake.Count(http.MethodPost, "/fill/form.pdf"))
	var fillBody map[string]any
	for _, r := range f.fake.Requests() {
		if r.Path == "/fill/form.pdf" {
			require.NoError(t, json.Unmarshal(r.Body, &fillBody))
		}
	}
	assert.Equal(t, map[string]any{
		"fields": []any{map[string]any{"name": "Name", "value": "Alice"}},
	}, fillBody)

	tabs := f.host.Tabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, "form_filled.pdf", tabs[0].FileID)
	assert.Equal(t, f.fake.URL+"/download/form_filled.pdf", tabs[0].URL)
	assert.True(t, form.State().Submitted)
	assert.Empty(t, f.host.Alerts())
}

func TestFillForm_RepeatedSubmissionsOpenATabEach(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())
	form, err := f.shell.FillForm()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := form.Submit(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, f.host.Tabs(), 3)
	assert.Equal(t, 3, f.fake.Count(http.MethodPost, "/fill/form.pdf"))
}

func TestFillForm_SubmitsEmptyInputs(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())
	form, err := f.shell.FillForm()
	require.NoError(t, err)

	_, err = form.Submit(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, f.fake.Count(http.MethodPost, "/fill/form.pdf"))
	for _, r := range f.fake.Requests() {
		if r.Path == "/fill/form.pdf" {
			assert.JSONEq(t, `{"fields":[{"name":"","value":""}]}`, string(r.Body))
		}
	}
}

func TestFillForm_MissingFinalPDFAlerts(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFillResult(backend.FillResult{Message: "Form filled and flattened"})
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())
	form, err := f.shell.FillForm()
	require.NoError(t, err)
	form.SetName("Name")

	_, err = form.Submit(context.Background())
	assert.ErrorIs(t, err, workflow.ErrNoFinalPDF)

	assert.Empty(t, f.host.Tabs())
	assert.Equal(t, []string{"Fill error: backend returned no finalPDF"}, f.host.Alerts())
	assert.False(t, form.State().Submitted)
}

func TestFillForm_FailureAlertsAndKeepsInputs(t *testing.T) {
	f := newFixture(t)
	f.fake.FailFill(http.StatusInternalServerError, "FillFormFile failed: unknown field")
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())

	form, err := f.shell.FillForm()
	require.NoError(t, err)
	form.SetName("Nmae")
	form.SetValue("Alice")

	_, err = form.Submit(context.Background())
	require.Error(t, err)

	state := form.State()
	assert.False(t, state.Submitted)
	assert.Equal(t, "Nmae", state.Name)
	assert.Equal(t, "Alice", state.Value)
	assert.Empty(t, f.host.Tabs())
	assert.Equal(t, []string{"Fill error: FillFormFile failed: unknown field"}, f.host.Alerts())
}

func TestFillForm_TransportFailureAlertsWithErrorText(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.shell.Upload(context.Background(), pdf("form.pdf")).OK())
	form, err := f.shell.FillForm()
	require.NoError(t, err)

	f.fake.Close()
	_, err = form.Submit(context.Background())
	require.Error(t, err)

	alerts := f.host.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, strings.HasPrefix(alerts[0], "Fill error: fill: "), alerts[0])
	assert.False(t, form.State().Submitted)
}

func TestUploader_CallbackOncePerSuccess(t *testing.T) {
	fake := backendtest.New(t)
	client, err := backend.NewClient(fake.URL, backend.WithLogger(logging.Discard()))
	require.NoError(t, err)

	var calls []workflow.ActiveFile
	uploader := workflow.NewUploader(client, func(f workflow.ActiveFile) {
		calls = append(calls, f)
	}, logging.Discard())

	outcome := uploader.Upload(context.Background(), pdf("a.pdf"))
	require.True(t, outcome.OK())
	require.Len(t, calls, 1)
	assert.Equal(t, "a.pdf", calls[0].ID)

	fake.FailUpload(http.StatusInternalServerError, "Cannot save file")
	outcome = uploader.Upload(context.Background(), pdf("a.pdf"))
	assert.False(t, outcome.OK())
	assert.Equal(t, "Upload failed: Cannot save file", outcome.Message())
	assert.Len(t, calls, 1, "a failed upload never invokes the callback")
}

func TestUploader_NoFileSelected(t *testing.T) {
	f := newFixture(t)

	outcome := f.shell.Upload(context.Background(), workflow.LocalFile{})
	assert.ErrorIs(t, outcome.Err, workflow.ErrNoFileSelected)
	assert.Empty(t, f.fake.Requests())
}

func TestShell_UploadFailureIsRendered(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.shell.Upload(context.Background(), pdf("a.pdf")).OK())

	f.fake.FailUpload(http.StatusInternalServerError, "disk full")
	outcome := f.shell.Upload(context.Background(), pdf("b.pdf"))
	require.False(t, outcome.OK())

	snap := f.shell.Snapshot()
	require.NotNil(t, snap.Upload)
	assert.Equal(t, "Upload failed: disk full", snap.Upload.Message())
	require.NotNil(t, snap.Active)
	assert.Equal(t, "a.pdf", snap.Active.ID, "a failed upload leaves the active file alone")
}

func TestShell_UsesServerAssignedID(t *testing.T) {
	f := newFixture(t)
	f.fake.SetUploadResponse(`{"id":"a.pdf"}`)

	outcome := f.shell.Upload(context.Background(), pdf("a.pdf"))
	require.True(t, outcome.OK())
	active, _ := f.shell.Active()
	assert.Equal(t, "a.pdf", active.ID)

	f.fake.SetUploadResponse(`{"id":"stored-42.pdf"}`)
	f.fake.AddFile("stored-42.pdf", []byte("x"), backend.FormField{Name: "Name", Value: "Bob"})
	outcome = f.shell.Upload(context.Background(), pdf("local.pdf"))
	require.True(t, outcome.OK())

	active, _ = f.shell.Active()
	assert.Equal(t, "stored-42.pdf", active.ID)
	assert.Equal(t, "local.pdf", active.LocalName)
	assert.Equal(t, []string{"Name: Bob"}, waitFields(t, f.shell).Items)
}

func TestShell_StaleListingNeverOverwritesNewerFile(t *testing.T) {
	f := newFixture(t)
	f.fake.AddFile("old.pdf", []byte("x"), backend.FormField{Name: "Old", Value: "1"})
	f.fake.AddFile("new.pdf", []byte("x"), backend.FormField{Name: "New", Value: "2"})

	release := f.fake.Block("old.pdf")
	f.shell.SetActiveFile("old.pdf")
	f.shell.SetActiveFile("new.pdf")

	view := waitFields(t, f.shell)
	assert.Equal(t, []string{"New: 2"}, view.Items)

	release()
	// Give a late old.pdf response every chance to land.
	time.Sleep(50 * time.Millisecond)

	snap := f.shell.Snapshot()
	require.NotNil(t, snap.Fields)
	assert.Equal(t, "new.pdf", snap.Fields.FileID)
	assert.Equal(t, []string{"New: 2"}, snap.Fields.Items)
}

func TestFieldViewer_SupersededRefreshIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.fake.AddFile("form.pdf", []byte("x"), backend.FormField{Name: "Name", Value: "first"})
	f.shell.SetActiveFile("form.pdf")
	waitFields(t, f.shell)

	viewer, err := f.shell.Viewer()
	require.NoError(t, err)

	// The slow listing starts first and answers last.
	release := f.fake.Block("form.pdf")
	slow := viewer.Refresh(context.Background())
	require.Eventually(t, func() bool {
		return f.fake.Count(http.MethodGet, "/fields/form.pdf") == 2
	}, 2*time.Second, 5*time.Millisecond)

	f.fake.Unblock("form.pdf")
	f.fake.SetFields("form.pdf", backend.FormField{Name: "Name", Value: "second"})
	require.NoError(t, viewer.Load(context.Background()))
	require.Equal(t, []string{"Name: second"}, viewer.View().Items)

	f.fake.FailFields("form.pdf", http.StatusInternalServerError, "stale")
	release()
	<-slow

	view := viewer.View()
	assert.Equal(t, workflow.StatusList, view.Status)
	assert.Equal(t, []string{"Name: second"}, view.Items)
	assert.False(t, view.Loading)
}

func TestShell_ClearCancelsInFlightListing(t *testing.T) {
	f := newFixture(t)
	f.fake.AddFile("slow.pdf", []byte("x"), backend.FormField{Name: "Name", Value: "Alice"})
	f.fake.Block("slow.pdf")

	f.shell.SetActiveFile("slow.pdf")
	viewer, err := f.shell.Viewer()
	require.NoError(t, err)

	f.shell.Clear()

	select {
	case <-viewer.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listing was not cancelled by Clear")
	}
	assert.ErrorIs(t, viewer.Load(context.Background()), workflow.ErrUnmounted)
	assert.Nil(t, f.shell.Snapshot().Fields)
}

func TestFillForm_UnmountedFormRefusesToSubmit(t *testing.T) {
	f := newFixture(t)
	f.shell.SetActiveFile("form.pdf")
	form, err := f.shell.FillForm()
	require.NoError(t, err)

	f.shell.Clear()

	_, err = form.Submit(context.Background())
	assert.ErrorIs(t, err, workflow.ErrUnmounted)
	assert.Zero(t, f.fake.Count(http.MethodPost, "/fill/form.pdf"))
	assert.Empty(t, f.host.Alerts())
}

func TestShell_SetActiveFileIgnoresEmptyID(t *testing.T) {
	f := newFixture(t)
	f.shell.SetActiveFile("")
	_, ok := f.shell.Active()
	assert.False(t, ok)
}

func TestShell_GenerationAdvances(t *testing.T) {
	f := newFixture(t)
	g0 := f.shell.Snapshot().Generation

	f.shell.SetActiveFile("a.pdf")
	viewer, err := f.shell.Viewer()
	require.NoError(t, err)
	assert.Equal(t, g0+1, viewer.Generation())

	f.shell.Clear()
	assert.Equal(t, g0+2, f.shell.Snapshot().Generation)
}

func TestEventQueue(t *testing.T) {
	var q workflow.EventQueue
	q.OpenTab(workflow.Link{FileID: "a.pdf", URL: "/download/a.pdf"})
	q.Alert("Fill error: nope")

	events := q.Drain()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsOpenTab())
	assert.Equal(t, "a.pdf", events[0].Link.FileID)
	assert.Equal(t, workflow.EventAlert, events[1].Kind)
	assert.Equal(t, "Fill error: nope", events[1].Message)
	assert.Empty(t, q.Drain())
}

// uploadOnActivate runs once from the log line announcing that file became
// active, which is emitted before the Upload call for file returns.
type uploadOnActivate struct {
	once sync.Once
	file string
	run  func()
}

func (h *uploadOnActivate) Levels() []logrus.Level { return logrus.AllLevels }

func (h *uploadOnActivate) Fire(e *logrus.Entry) error {
	if e.Message == "Active file set" && e.Data["file"] == h.file {
		h.once.Do(h.run)
	}
	return nil
}

func TestShell_UploadOutcomeFollowsActiveFile(t *testing.T) {
	fake := backendtest.New(t)
	client, err := backend.NewClient(fake.URL, backend.WithLogger(logging.Discard()))
	require.NoError(t, err)

	var shell *workflow.Shell
	hook := &uploadOnActivate{file: "a.pdf"}
	hook.run = func() {
		assert.True(t, shell.Upload(context.Background(), pdf("b.pdf")).OK())
	}
	logger := logging.Discard()
	logger.AddHook(hook)
	shell = workflow.NewShell(client, &recordingHost{}, workflow.WithLogger(logger))

	require.True(t, shell.Upload(context.Background(), pdf("a.pdf")).OK())

	snap := shell.Snapshot()
	require.NotNil(t, snap.Active)
	require.NotNil(t, snap.Upload)
	assert.Equal(t, "b.pdf", snap.Active.ID)
	assert.Equal(t, "b.pdf", snap.Upload.File.ID, "the last upload shown is the one that is active")
}
