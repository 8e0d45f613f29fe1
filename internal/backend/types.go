package backend

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// FormField is a single field name/value pair as reported by the backend.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// String renders the field the way every front-end lists it.
func (f FormField) String() string {
	return f.Name + ": " + f.Value
}

// FillRequest is the payload of the fill endpoint.
type FillRequest struct {
	Fields []FormField `json:"fields"`
}

// SingleField builds a request carrying exactly one field.
func SingleField(name, value string) FillRequest {
	return FillRequest{Fields: []FormField{{Name: name, Value: value}}}
}

// FillResult is returned by the fill endpoint. FinalPDF names the flattened
// document and is the only field the workflow depends on.
type FillResult struct {
	FinalPDF  string `json:"finalPDF"`
	FilledPDF string `json:"filledPDF,omitempty"`
	Message   string `json:"message,omitempty"`
}

// UploadResult identifies a stored document.
type UploadResult struct {
	// ID is the identifier to use for every later call.
	ID string
	// Assigned reports whether the backend returned the ID explicitly. When
	// false, ID is the local filename that was uploaded.
	Assigned bool
	// Message is the raw response text, trimmed.
	Message string
}

// Download is an open download stream. Callers must close it.
type Download struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// APIError is a non-200 response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ResponseBody returns the backend's error body carried by err, if any.
func ResponseBody(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Body) != "" {
		return strings.TrimSpace(apiErr.Body), true
	}
	return "", false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
