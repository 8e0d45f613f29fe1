package workflow

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/backend"
)

// FillState is a render-ready copy of a FillForm's state.
type FillState struct {
	FileID    string
	Name      string
	Value     string
	Submitted bool
	// Result is the last successful fill, if any.
	Result *backend.FillResult
}

// FillForm fills and flattens one field of one file.
type FillForm struct {
	api      API
	host     Host
	links    func(id string) string
	fileID   string
	mountCtx context.Context
	logger   *logrus.Logger

	mu        sync.Mutex
	name      string
	value     string
	submitted bool
	result    *backend.FillResult
}

func newFillForm(mountCtx context.Context, api API, host Host, links func(string) string, fileID string, logger *logrus.Logger) *FillForm {
	return &FillForm{
		api:      api,
		host:     host,
		links:    links,
		fileID:   fileID,
		mountCtx: mountCtx,
		logger:   logger,
	}
}

// FileID is the file this form was mounted for.
func (f *FillForm) FileID() string {
	return f.fileID
}

// SetName sets the field name input.
func (f *FillForm) SetName(name string) {
	f.mu.Lock()
	f.name = name
	f.mu.Unlock()
}

// SetValue sets the field value input.
func (f *FillForm) SetValue(value string) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
}

// State returns the current render state.
func (f *FillForm) State() FillState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FillState{
		FileID:    f.fileID,
		Name:      f.name,
		Value:     f.value,
		Submitted: f.submitted,
		Result:    f.result,
	}
}

// Submit sends the current name and value. On success the form is marked
// submitted and the host opens the flattened document; on failure the host
// shows an alert and the inputs are kept for a retry. Inputs are sent as
// they are, empty or not.
func (f *FillForm) Submit(ctx context.Context) (*backend.FillResult, error) {
	if f.mountCtx.Err() != nil {
		return nil, ErrUnmounted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(f.mountCtx, cancel)
	defer stop()

	f.mu.Lock()
	fill := backend.SingleField(f.name, f.value)
	f.mu.Unlock()

	entry := f.logger.WithFields(logrus.Fields{"file": f.fileID, "field": fill.Fields[0].Name})

	result, err := f.api.Fill(ctx, f.fileID, fill)
	if f.mountCtx.Err() != nil {
		entry.Debug("Discarding fill result for unmounted form")
		return nil, ErrUnmounted
	}
	if err == nil && result.FinalPDF == "" {
		err = ErrNoFinalPDF
	}
	if err != nil {
		entry.WithError(err).Warn("Fill failed")
		f.host.Alert(FillErrorMessage(err))
		return nil, err
	}

	f.mu.Lock()
	f.submitted = true
	f.result = result
	f.mu.Unlock()

	entry.WithField("final", result.FinalPDF).Info("Fill complete")
	f.host.OpenTab(Link{FileID: result.FinalPDF, URL: f.links(result.FinalPDF)})
	return result, nil
}

// FillErrorMessage is the alert text for a failed fill: the backend's
// error body when there is one, the transport error otherwise.
func FillErrorMessage(err error) string {
	if body, ok := backend.ResponseBody(err); ok {
		return "Fill error: " + body
	}
	return "Fill error: " + err.Error()
}
