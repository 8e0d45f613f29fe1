package cli

import (
	"context"
	"sync"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

// terminalHost opens a tab by saving the document to outDir and shows an
// alert as a red line on stderr.
type terminalHost struct {
	ctx    context.Context
	api    backend.Downloader
	outDir string
	ui     *printer

	mu  sync.Mutex
	err error
}

func newTerminalHost(ctx context.Context, api backend.Downloader, outDir string, ui *printer) *terminalHost {
	if outDir == "" {
		outDir = "."
	}
	return &terminalHost{ctx: ctx, api: api, outDir: outDir, ui: ui}
}

func (h *terminalHost) OpenTab(link workflow.Link) {
	path, n, err := backend.SaveDocument(h.ctx, h.api, link.FileID, h.outDir)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		if h.err == nil {
			h.err = err
		}
		h.ui.errorf("Could not open %s: %v", link.URL, err)
		return
	}
	h.ui.successf("Saved %s to %s (%d bytes)", link.FileID, path, n)
}

func (h *terminalHost) Alert(message string) {
	h.ui.errorf("%s", message)
}

// Err is the first failure to save an opened document.
func (h *terminalHost) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
