// Package workflow is the front-end state machine shared by every surface:
// the shell that owns the active file, the uploader that produces it, and
// the field viewer and fill form that consume it.
//
// The shell mounts a fresh FieldViewer and FillForm each time a file
// becomes active and discards them when the file changes or is cleared.
// Discarded components have their in-flight requests cancelled and their
// late results ignored, so nothing that completes after a switch can show
// state for the wrong file.
package workflow

import (
	"context"
	"errors"
	"io"

	"github.com/a3tai/pdf-playground/internal/backend"
)

var (
	// ErrNoFileSelected is returned when an upload is attempted without a file.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrNoActiveFile is returned by operations that need an active file.
	ErrNoActiveFile = errors.New("no active file")
	// ErrUnmounted is returned by components whose file is no longer active.
	ErrUnmounted = errors.New("component is no longer mounted")
	// ErrNoFinalPDF is returned when a fill succeeds without naming the
	// flattened document.
	ErrNoFinalPDF = errors.New("backend returned no finalPDF")
)

// API is the subset of the backend the workflow drives.
type API interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*backend.UploadResult, error)
	ListFields(ctx context.Context, id string) ([]backend.FormField, error)
	Fill(ctx context.Context, id string, fill backend.FillRequest) (*backend.FillResult, error)
	DownloadURL(id string) string
}

// Link points at a downloadable document.
type Link struct {
	FileID string
	URL    string
}

// Host is whatever presents the workflow to a person: a browser tab, an MCP
// client, a terminal.
type Host interface {
	// OpenTab shows a downloadable document, typically in a new tab.
	OpenTab(link Link)
	// Alert shows a blocking error message.
	Alert(message string)
}

// ActiveFile is the document the front-end currently treats as loaded.
type ActiveFile struct {
	// ID is threaded through every later backend call.
	ID string
	// LocalName is the name of the file that was picked for upload.
	LocalName string
}

// LocalFile is a file picked for upload.
type LocalFile struct {
	Name    string
	Content io.Reader
}
