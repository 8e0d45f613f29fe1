// Package backendtest runs an in-process PDF form backend for tests. It
// follows the real service's routes and responses closely enough to drive
// every front-end end to end, and records each request it receives.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/a3tai/pdf-playground/internal/backend"
)

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	// Body is the raw body for JSON requests and the uploaded bytes for uploads.
	Body []byte
	// Filename is the multipart filename of an upload.
	Filename string
}

type failure struct {
	status int
	body   string
}

// Server is a fake backend.
type Server struct {
	*httptest.Server

	t              testing.TB
	mu             sync.Mutex
	files          map[string][]byte
	fields         map[string][]backend.FormField
	fieldFailures  map[string]failure
	uploadFailure  *failure
	uploadResponse string
	fillFailure    *failure
	fillResult     *backend.FillResult
	gates          map[string]chan struct{}
	requests       []Request
}

// New starts a fake backend and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		t:             t,
		files:         make(map[string][]byte),
		fields:        make(map[string][]backend.FormField),
		fieldFailures: make(map[string]failure),
		gates:         make(map[string]chan struct{}),
	}

	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/fields/{id}", s.handleFields).Methods(http.MethodGet)
	r.HandleFunc("/fill/{id}", s.handleFill).Methods(http.MethodPost)
	r.HandleFunc("/download/{id}", s.handleDownload).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddFile stores a document as if it had been uploaded.
func (s *Server) AddFile(id string, content []byte, fields ...backend.FormField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = content
	s.fields[id] = fields
}

// SetFields sets the fields reported for id once it has been uploaded.
func (s *Server) SetFields(id string, fields ...backend.FormField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[id] = fields
}

// FailFields makes the field listing of id fail.
func (s *Server) FailFields(id string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldFailures[id] = failure{status: status, body: body}
}

// RecoverFields undoes FailFields.
func (s *Server) RecoverFields(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fieldFailures, id)
}

// FailUpload makes every upload fail.
func (s *Server) FailUpload(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFailure = &failure{status: status, body: body}
}

// SetUploadResponse replaces the plain-text upload acknowledgement.
func (s *Server) SetUploadResponse(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadResponse = body
}

// FailFill makes every fill fail.
func (s *Server) FailFill(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillFailure = &failure{status: status, body: body}
}

// SetFillResult replaces the computed fill response.
func (s *Server) SetFillResult(result backend.FillResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillResult = &result
}

// Block holds field listings of id until the returned release func is
// called. Blocked listings are released when the test ends.
func (s *Server) Block(id string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[id] = gate
	s.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[id] == gate {
				delete(s.gates, id)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
	s.t.Cleanup(release)
	return release
}

// Unblock lets new listings of id through. Listings already held by Block
// keep waiting for their release.
func (s *Server) Unblock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gates, id)
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// File returns a stored document.
func (s *Server) File(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[id]
	return b, ok
}

func (s *Server) record(r *http.Request, body []byte, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Body:     body,
		Filename: filename,
	})
}

func pathID(r *http.Request) string {
	raw := mux.Vars(r)["id"]
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(backend.UploadField)
	if err != nil {
		s.record(r, nil, "")
		http.Error(w, "Error retrieving the file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	s.record(r, content, header.Filename)
	if err != nil {
		http.Error(w, "Error saving", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	fail := s.uploadFailure
	response := s.uploadResponse
	if fail == nil {
		s.files[header.Filename] = content
		if _, ok := s.fields[header.Filename]; !ok {
			s.fields[header.Filename] = nil
		}
	}
	s.mu.Unlock()

	if fail != nil {
		http.Error(w, fail.body, fail.status)
		return
	}
	if response == "" {
		response = "Uploaded successfully"
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, response)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.record(r, nil, "")

	s.mu.Lock()
	gate := s.gates[id]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	fail, failed := s.fieldFailures[id]
	_, exists := s.files[id]
	fields := append([]backend.FormField(nil), s.fields[id]...)
	s.mu.Unlock()

	switch {
	case failed:
		http.Error(w, fail.body, fail.status)
		return
	case !exists:
		http.Error(w, "PDF not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fields)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	body, _ := io.ReadAll(r.Body)
	s.record(r, body, "")

	var fill backend.FillRequest
	if err := json.Unmarshal(body, &fill); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	fail := s.fillFailure
	result := s.fillResult
	content, exists := s.files[id]
	s.mu.Unlock()

	if fail != nil {
		http.Error(w, fail.body, fail.status)
		return
	}
	if !exists {
		http.Error(w, "FillFormFile failed: no such file "+id, http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = &backend.FillResult{
			Message:   "Form filled and flattened",
			FilledPDF: "filled_" + id,
			FinalPDF:  "flattened_" + id,
		}
	}

	s.mu.Lock()
	s.files[result.FinalPDF] = content
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.record(r, nil, "")

	content, ok := s.File(id)
	if !ok {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	_, _ = w.Write(content)
}
