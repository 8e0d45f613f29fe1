package workflow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/backend"
)

// UploadOutcome is the result of one upload: either the stored file or the
// reason it was not stored.
type UploadOutcome struct {
	File ActiveFile
	Err  error
}

// OK reports whether the upload succeeded.
func (o UploadOutcome) OK() bool {
	return o.Err == nil
}

// Message is the text a surface shows for the outcome.
func (o UploadOutcome) Message() string {
	if o.Err == nil {
		return fmt.Sprintf("Uploaded %s", o.File.LocalName)
	}
	if body, ok := backend.ResponseBody(o.Err); ok {
		return "Upload failed: " + body
	}
	return "Upload failed: " + o.Err.Error()
}

// Uploader sends a picked file to the backend and reports the stored file
// through its callback.
type Uploader struct {
	api        API
	onUploaded func(ActiveFile)
	logger     *logrus.Logger
}

// NewUploader creates an uploader. onUploaded is invoked exactly once per
// successful upload and never on failure.
func NewUploader(api API, onUploaded func(ActiveFile), logger *logrus.Logger) *Uploader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Uploader{api: api, onUploaded: onUploaded, logger: logger}
}

// Upload sends f and returns the outcome.
func (u *Uploader) Upload(ctx context.Context, f LocalFile) UploadOutcome {
	if f.Name == "" || f.Content == nil {
		return UploadOutcome{Err: ErrNoFileSelected}
	}

	result, err := u.api.Upload(ctx, f.Name, f.Content)
	if err != nil {
		u.logger.WithError(err).WithField("file", f.Name).Warn("Upload failed")
		return UploadOutcome{File: ActiveFile{LocalName: f.Name}, Err: err}
	}

	file := ActiveFile{ID: result.ID, LocalName: f.Name}
	u.logger.WithFields(logrus.Fields{
		"file":     f.Name,
		"id":       file.ID,
		"assigned": result.Assigned,
	}).Info("Upload complete")

	if u.onUploaded != nil {
		u.onUploaded(file)
	}
	return UploadOutcome{File: file}
}
