package workflow

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/backend"
)

const (
	// NoFieldsMessage is shown when a document has no form fields.
	NoFieldsMessage = "PDF has no form fields."
	// FieldsFallbackError is shown when a listing fails without a backend message.
	FieldsFallbackError = "Could not extract fields"
)

// FieldStatus selects which of the mutually exclusive field views to render.
type FieldStatus int

const (
	StatusEmpty FieldStatus = iota
	StatusError
	StatusList
)

func (s FieldStatus) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusList:
		return "list"
	default:
		return "empty"
	}
}

// FieldView is a render-ready copy of a FieldViewer's state.
type FieldView struct {
	FileID string
	Status FieldStatus
	// Error is set when Status is StatusError.
	Error string
	// Message is set when Status is StatusEmpty.
	Message string
	// Items holds one "name: value" line per field when Status is StatusList.
	Items  []string
	Fields []backend.FormField
	// Loading reports that a listing is in flight.
	Loading bool
}

// FieldViewer lists the form fields of one file.
type FieldViewer struct {
	api        API
	fileID     string
	generation uint64
	mountCtx   context.Context
	logger     *logrus.Logger

	mu       sync.Mutex
	seq      uint64
	inFlight int
	fields   []backend.FormField
	err      string
	ready    chan struct{}
}

func newFieldViewer(mountCtx context.Context, api API, fileID string, generation uint64, logger *logrus.Logger) *FieldViewer {
	ready := make(chan struct{})
	close(ready)
	return &FieldViewer{
		api:        api,
		fileID:     fileID,
		generation: generation,
		mountCtx:   mountCtx,
		logger:     logger,
		ready:      ready,
	}
}

// FileID is the file this viewer was mounted for.
func (v *FieldViewer) FileID() string {
	return v.fileID
}

// Generation is the shell generation the viewer was mounted at.
func (v *FieldViewer) Generation() uint64 {
	return v.generation
}

// Refresh starts a listing in the background. The returned channel closes
// when that listing has been applied or discarded.
func (v *FieldViewer) Refresh(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	v.mu.Lock()
	v.ready = done
	v.mu.Unlock()

	go func() {
		defer close(done)
		_ = v.Load(ctx)
	}()
	return done
}

// Ready returns a channel that closes when the most recent Refresh finishes.
func (v *FieldViewer) Ready() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

// Load lists the fields and applies the result unless a newer listing was
// started meanwhile or the viewer was unmounted. It returns ErrUnmounted
// or the listing error; a discarded result is not an error.
func (v *FieldViewer) Load(ctx context.Context) error {
	if v.mountCtx.Err() != nil {
		return ErrUnmounted
	}

	// Unmounting cancels the request.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.mountCtx, cancel)
	defer stop()

	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.inFlight++
	v.mu.Unlock()

	fields, err := v.api.ListFields(ctx, v.fileID)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlight--

	entry := v.logger.WithFields(logrus.Fields{
		"file":       v.fileID,
		"generation": v.generation,
		"request":    seq,
	})
	if v.mountCtx.Err() != nil || seq != v.seq {
		entry.Debug("Discarding superseded field listing")
		return nil
	}

	if err != nil {
		v.fields = nil
		v.err = FieldsFallbackError
		if body, ok := backend.ResponseBody(err); ok {
			v.err = body
		}
		entry.WithError(err).Warn("Field listing failed")
		return err
	}

	v.fields = fields
	v.err = ""
	entry.WithField("count", len(fields)).Debug("Field listing applied")
	return nil
}

// View returns the current render state.
func (v *FieldViewer) View() FieldView {
	v.mu.Lock()
	defer v.mu.Unlock()

	view := FieldView{
		FileID:  v.fileID,
		Loading: v.inFlight > 0,
	}
	switch {
	case v.err != "":
		view.Status = StatusError
		view.Error = v.err
	case len(v.fields) == 0:
		view.Status = StatusEmpty
		view.Message = NoFieldsMessage
	default:
		view.Status = StatusList
		view.Fields = append([]backend.FormField(nil), v.fields...)
		view.Items = make([]string, len(v.fields))
		for i, f := range v.fields {
			view.Items[i] = f.String()
		}
	}
	return view
}
