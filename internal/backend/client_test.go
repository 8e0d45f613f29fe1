package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/backend/backendtest"
	"github.com/a3tai/pdf-playground/internal/logging"
)

func newClient(t *testing.T, fake *backendtest.Server, opts ...backend.Option) *backend.Client {
	t.Helper()
	opts = append([]backend.Option{backend.WithLogger(logging.Discard())}, opts...)
	client, err := backend.NewClient(fake.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		_, err := backend.NewClient(raw)
		assert.Error(t, err, "base URL %q", raw)
	}
}

func TestClient_DownloadURL(t *testing.T) {
	client, err := backend.NewClient("http://localhost:8080/")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", client.BaseURL())
	assert.Equal(t, "http://localhost:8080/download/form.pdf", client.DownloadURL("form.pdf"))
	assert.Equal(t, "http://localhost:8080/download/tax%20form%232.pdf", client.DownloadURL("tax form#2.pdf"))
}

func TestClient_Upload(t *testing.T) {
	fake := backendtest.New(t)
	client := newClient(t, fake)

	result, err := client.Upload(context.Background(), "a.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)

	assert.Equal(t, "a.pdf", result.ID)
	assert.False(t, result.Assigned)
	assert.Equal(t, "Uploaded successfully", result.Message)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/upload", reqs[0].Path)
	assert.Equal(t, "a.pdf", reqs[0].Filename)
	assert.Equal(t, "%PDF-1.7", string(reqs[0].Body))
}

func TestClient_UploadAssignedID(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantID   string
		assigned bool
	}{
		{name: "id key", response: `{"id":"7f3c.pdf"}`, wantID: "7f3c.pdf", assigned: true},
		{name: "fileName key", response: `{"fileName":"stored-a.pdf"}`, wantID: "stored-a.pdf", assigned: true},
		{name: "blank id falls back", response: `{"id":"  "}`, wantID: "a.pdf"},
		{name: "plain text falls back", response: "Uploaded successfully", wantID: "a.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := backendtest.New(t)
			fake.SetUploadResponse(tt.response)
			client := newClient(t, fake)

			result, err := client.Upload(context.Background(), "a.pdf", strings.NewReader("x"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, result.ID)
			assert.Equal(t, tt.assigned, result.Assigned)
		})
	}
}

func TestClient_UploadFailure(t *testing.T) {
	fake := backendtest.New(t)
	fake.FailUpload(http.StatusInternalServerError, "Failed to upload to MinIO: bucket missing")
	client := newClient(t, fake)

	_, err := client.Upload(context.Background(), "a.pdf", strings.NewReader("x"))
	require.Error(t, err)

	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	body, ok := backend.ResponseBody(err)
	assert.True(t, ok)
	assert.Equal(t, "Failed to upload to MinIO: bucket missing", body)
}

func TestClient_ListFields(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("form.pdf", []byte("x"),
		backend.FormField{Name: "Name", Value: "Alice"},
		backend.FormField{Name: "City", Value: ""},
	)
	fake.AddFile("blank.pdf", []byte("x"))
	client := newClient(t, fake)

	fields, err := client.ListFields(context.Background(), "form.pdf")
	require.NoError(t, err)
	assert.Equal(t, []backend.FormField{{Name: "Name", Value: "Alice"}, {Name: "City"}}, fields)
	assert.Equal(t, "Name: Alice", fields[0].String())

	fields, err = client.ListFields(context.Background(), "blank.pdf")
	require.NoError(t, err)
	assert.NotNil(t, fields, "a null body decodes to an empty, non-nil slice")
	assert.Empty(t, fields)
}

func TestClient_ListFieldsErrors(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("bad.pdf", []byte("x"))
	fake.FailFields("bad.pdf", http.StatusInternalServerError, "bad file")
	client := newClient(t, fake)

	_, err := client.ListFields(context.Background(), "bad.pdf")
	body, ok := backend.ResponseBody(err)
	require.True(t, ok)
	assert.Equal(t, "bad file", body)

	_, err = client.ListFields(context.Background(), "missing.pdf")
	assert.True(t, backend.IsNotFound(err))
}

func TestClient_Fill(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("form.pdf", []byte("x"))
	client := newClient(t, fake)

	result, err := client.Fill(context.Background(), "form.pdf", backend.SingleField("Name", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, "flattened_form.pdf", result.FinalPDF)
	assert.Equal(t, "filled_form.pdf", result.FilledPDF)

	require.Equal(t, 1, fake.Count(http.MethodPost, "/fill/form.pdf"))
	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.Requests()[0].Body, &sent))
	assert.Equal(t, map[string]any{
		"fields": []any{map[string]any{"name": "Name", "value": "Alice"}},
	}, sent)
}

func TestClient_Download(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("form.pdf", []byte("%PDF-1.4 body"))
	client := newClient(t, fake)

	dl, err := client.Download(context.Background(), "form.pdf")
	require.NoError(t, err)
	defer dl.Close()

	content, err := io.ReadAll(dl)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(content))
	assert.Equal(t, "application/pdf", dl.ContentType)

	_, err = client.Download(context.Background(), "nope.pdf")
	assert.True(t, backend.IsNotFound(err))
}

func TestClient_EscapesIdentifiers(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("my form #1.pdf", []byte("x"), backend.FormField{Name: "A", Value: "1"})
	client := newClient(t, fake)

	fields, err := client.ListFields(context.Background(), "my form #1.pdf")
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	fake := backendtest.New(t)
	fake.AddFile("form.pdf", []byte("x"))
	client := newClient(t, fake, backend.WithRateLimit(0.001))

	// The first request consumes the only token.
	_, err := client.ListFields(context.Background(), "form.pdf")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.ListFields(ctx, "form.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, fake.Count(http.MethodGet, "/fields/form.pdf"))
}

func TestClient_TransportError(t *testing.T) {
	fake := backendtest.New(t)
	client := newClient(t, fake, backend.WithTimeout(time.Second))
	fake.Close()

	_, err := client.ListFields(context.Background(), "form.pdf")
	require.Error(t, err)
	_, ok := backend.ResponseBody(err)
	assert.False(t, ok, "transport errors carry no backend body")
}
