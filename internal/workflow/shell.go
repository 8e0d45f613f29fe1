package workflow

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Snapshot is an immutable copy of everything a surface renders.
type Snapshot struct {
	// Active is nil when no file is active.
	Active *ActiveFile
	// Upload is the outcome of the last upload attempt, if any.
	Upload *UploadOutcome
	// OriginalURL downloads the active file as uploaded.
	OriginalURL string
	// Fields and Fill are nil while no file is active.
	Fields *FieldView
	Fill   *FillState
	// Generation increases on every activation and clear.
	Generation uint64
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithLinks overrides how download URLs are built. Surfaces that proxy
// downloads through themselves use it; the default points at the backend.
func WithLinks(links func(id string) string) ShellOption {
	return func(s *Shell) {
		if links != nil {
			s.links = links
		}
	}
}

// WithLogger sets the logger shared by the shell and its components.
func WithLogger(logger *logrus.Logger) ShellOption {
	return func(s *Shell) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Shell owns the active file. It is the only writer of that state and
// mounts the field viewer and fill form only while a file is active.
type Shell struct {
	api      API
	host     Host
	links    func(id string) string
	logger   *logrus.Logger
	uploader *Uploader

	mu         sync.Mutex
	active     *ActiveFile
	generation uint64
	upload     *UploadOutcome
	viewer     *FieldViewer
	fill       *FillForm
	unmount    context.CancelFunc
}

// NewShell creates a shell with no active file.
func NewShell(api API, host Host, opts ...ShellOption) *Shell {
	s := &Shell{
		api:    api,
		host:   host,
		links:  api.DownloadURL,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = NewUploader(api, s.uploaded, s.logger)
	return s
}

// Upload sends f and, on success, makes it the active file. The outcome is
// kept so that failures are rendered rather than dropped. A successful
// outcome is recorded together with the activation it caused.
func (s *Shell) Upload(ctx context.Context, f LocalFile) UploadOutcome {
	outcome := s.uploader.Upload(ctx, f)
	if outcome.OK() {
		return outcome
	}

	s.mu.Lock()
	s.upload = &outcome
	s.mu.Unlock()
	return outcome
}

func (s *Shell) uploaded(file ActiveFile) {
	s.mu.Lock()
	s.upload = &UploadOutcome{File: file}
	generation := s.activateLocked(file)
	s.mu.Unlock()

	s.logActivated(file, generation)
}

// SetActiveFile makes id the active file, replacing any previous one
// without confirmation. An empty id is ignored.
func (s *Shell) SetActiveFile(id string) {
	if id == "" {
		return
	}
	file := ActiveFile{ID: id, LocalName: id}

	s.mu.Lock()
	generation := s.activateLocked(file)
	s.mu.Unlock()

	s.logActivated(file, generation)
}

// activateLocked mounts a viewer and form for file and returns the new
// generation. s.mu must be held.
func (s *Shell) activateLocked(file ActiveFile) uint64 {
	s.unmountLocked()

	s.generation++
	mountCtx, cancel := context.WithCancel(context.Background())
	s.unmount = cancel
	s.active = &file
	s.viewer = newFieldViewer(mountCtx, s.api, file.ID, s.generation, s.logger)
	s.fill = newFillForm(mountCtx, s.api, s.host, s.links, file.ID, s.logger)
	s.viewer.Refresh(mountCtx)
	return s.generation
}

func (s *Shell) logActivated(file ActiveFile, generation uint64) {
	s.logger.WithFields(logrus.Fields{"file": file.ID, "generation": generation}).Info("Active file set")
}

// Clear drops the active file and unmounts everything that depends on it.
func (s *Shell) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unmountLocked()
	s.generation++
	s.active = nil
	s.upload = nil
	s.logger.WithField("generation", s.generation).Info("Active file cleared")
}

func (s *Shell) unmountLocked() {
	if s.unmount != nil {
		s.unmount()
		s.unmount = nil
	}
	s.viewer = nil
	s.fill = nil
}

// Active returns the active file.
func (s *Shell) Active() (ActiveFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ActiveFile{}, false
	}
	return *s.active, true
}

// Viewer returns the mounted field viewer, or ErrNoActiveFile.
func (s *Shell) Viewer() (*FieldViewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewer == nil {
		return nil, ErrNoActiveFile
	}
	return s.viewer, nil
}

// FillForm returns the mounted fill form, or ErrNoActiveFile.
func (s *Shell) FillForm() (*FillForm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fill == nil {
		return nil, ErrNoActiveFile
	}
	return s.fill, nil
}

// Snapshot returns the render state of the whole front-end.
func (s *Shell) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Generation: s.generation}
	if s.upload != nil {
		outcome := *s.upload
		snap.Upload = &outcome
	}
	viewer, fill := s.viewer, s.fill
	if s.active != nil {
		active := *s.active
		snap.Active = &active
		snap.OriginalURL = s.links(active.ID)
	}
	s.mu.Unlock()

	if viewer != nil {
		view := viewer.View()
		snap.Fields = &view
	}
	if fill != nil {
		state := fill.State()
		snap.Fill = &state
	}
	return snap
}

// WaitForFields blocks until the mounted viewer's latest listing finishes.
// It returns ErrNoActiveFile when nothing is mounted.
func (s *Shell) WaitForFields(ctx context.Context) (FieldView, error) {
	viewer, err := s.Viewer()
	if err != nil {
		return FieldView{}, err
	}
	select {
	case <-viewer.Ready():
		return viewer.View(), nil
	case <-ctx.Done():
		return FieldView{}, ctx.Err()
	}
}
