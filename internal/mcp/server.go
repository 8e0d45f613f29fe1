package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/config"
	"github.com/a3tai/pdf-playground/internal/descriptions"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

// Backend is what the tools need from the PDF service.
type Backend interface {
	workflow.API
	backend.Downloader
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	api       Backend
	shell     *workflow.Shell
	events    *workflow.EventQueue
	mcpServer *server.MCPServer
	logger    *logrus.Logger

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, api Backend, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if api == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	events := &workflow.EventQueue{}
	s := &Server{
		config:    cfg,
		api:       api,
		shell:     workflow.NewShell(api, events, workflow.WithLogger(logger)),
		events:    events,
		mcpServer: mcpServer,
		logger:    logger,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_upload",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_upload")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleUpload)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_list_fields",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_list_fields")),
		mcp.WithBoolean("refresh",
			mcp.Description("Ask the service again instead of returning the last listing"),
		),
	), s.handleListFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_fill_field",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_fill_field")),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Field name exactly as pdf_list_fields reports it"),
		),
		mcp.WithString("value",
			mcp.Description("Value to write into the field"),
		),
	), s.handleFillField)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_download",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_download")),
		mcp.WithString("file",
			mcp.Description("Document identifier (defaults to the active document)"),
		),
		mcp.WithString("output",
			mcp.Required(),
			mcp.Description("Destination file or directory"),
		),
	), s.handleDownload)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_clear",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_clear")),
	), s.handleClear)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_status",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_status")),
	), s.handleStatus)
}

// Handler functions
func (s *Server) handleUpload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, closer, err := workflow.OpenLocalFile(path, s.config.MaxUploadSize)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer closer.Close()

	outcome := s.shell.Upload(ctx, f)
	if !outcome.OK() {
		return mcp.NewToolResultError(outcome.Message()), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout())
	defer cancel()
	view, err := s.shell.WaitForFields(waitCtx)

	text := outcome.Message() + "\n"
	text += fmt.Sprintf("Active file: %s\n", outcome.File.ID)
	if err == nil {
		text += "\n" + formatFieldView(view)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleListFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	viewer, err := s.shell.Viewer()
	if err != nil {
		return mcp.NewToolResultError(noActiveFile), nil
	}

	if refresh, ok := args["refresh"].(bool); ok && refresh {
		if err := viewer.Load(ctx); errors.Is(err, workflow.ErrUnmounted) {
			return mcp.NewToolResultError(noActiveFile), nil
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout())
		defer cancel()
		select {
		case <-viewer.Ready():
		case <-waitCtx.Done():
			return mcp.NewToolResultError("field listing did not finish: " + waitCtx.Err().Error()), nil
		}
	}

	view := viewer.View()
	if view.Status == workflow.StatusError {
		return mcp.NewToolResultError(view.Error), nil
	}
	return mcp.NewToolResultText(formatFieldView(view)), nil
}

func (s *Server) handleFillField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := ""
	if v, ok := request.GetArguments()["value"].(string); ok {
		value = v
	}

	form, err := s.shell.FillForm()
	if err != nil {
		return mcp.NewToolResultError(noActiveFile), nil
	}
	form.SetName(name)
	form.SetValue(value)

	// Tab and alert requests raised by this call are reported in its result.
	s.events.Drain()
	result, err := form.Submit(ctx)
	events := s.events.Drain()
	if err != nil {
		if errors.Is(err, workflow.ErrUnmounted) {
			return mcp.NewToolResultError(noActiveFile), nil
		}
		for _, ev := range events {
			if ev.Kind == workflow.EventAlert {
				return mcp.NewToolResultError(ev.Message), nil
			}
		}
		return mcp.NewToolResultError(workflow.FillErrorMessage(err)), nil
	}

	text := "PDF filled and flattened!\n"
	text += fmt.Sprintf("Field: %s = %q\n", name, value)
	text += fmt.Sprintf("Final PDF: %s\n", result.FinalPDF)
	for _, ev := range events {
		if ev.IsOpenTab() {
			text += fmt.Sprintf("Download: %s\n", ev.Link.URL)
		}
	}
	if result.Message != "" {
		text += fmt.Sprintf("Service: %s\n", result.Message)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := request.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, _ := request.GetArguments()["file"].(string)
	if id == "" {
		active, ok := s.shell.Active()
		if !ok {
			return mcp.NewToolResultError(noActiveFile), nil
		}
		id = active.ID
	}

	path, n, err := backend.SaveDocument(ctx, s.api, id, output)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Saved %s to %s (%d bytes)", id, path, n)), nil
}

func (s *Server) handleClear(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.shell.Clear()
	return mcp.NewToolResultText("Active file cleared"), nil
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatSnapshot(s.shell.Snapshot())), nil
}

const noActiveFile = "no active file: upload a PDF with pdf_upload first"

// Formatting methods
func formatFieldView(view workflow.FieldView) string {
	switch view.Status {
	case workflow.StatusError:
		return "Error: " + view.Error + "\n"
	case workflow.StatusEmpty:
		return view.Message + "\n"
	}
	text := fmt.Sprintf("Form fields (%d):\n", len(view.Items))
	for _, item := range view.Items {
		text += "  " + item + "\n"
	}
	return text
}

func (s *Server) formatSnapshot(snap workflow.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "Backend: %s\n", s.config.BackendURL)

	if snap.Upload != nil {
		fmt.Fprintf(&b, "Last upload: %s\n", snap.Upload.Message())
	}
	if snap.Active == nil {
		b.WriteString("Active file: none\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Active file: %s\n", snap.Active.ID)
	if snap.Active.LocalName != snap.Active.ID {
		fmt.Fprintf(&b, "Uploaded as: %s\n", snap.Active.LocalName)
	}
	fmt.Fprintf(&b, "Original: %s\n", snap.OriginalURL)

	if snap.Fields != nil {
		if snap.Fields.Loading {
			b.WriteString("Fields: loading\n")
		} else {
			b.WriteString(formatFieldView(*snap.Fields))
		}
	}
	if snap.Fill != nil && snap.Fill.Submitted && snap.Fill.Result != nil {
		fmt.Fprintf(&b, "Last fill: %s = %q -> %s\n", snap.Fill.Name, snap.Fill.Value, snap.Fill.Result.FinalPDF)
	}
	return b.String()
}

func (s *Server) waitTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return config.DefaultRequestTimeout
}

// Run serves the tools over stdio until stdin closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"backend": s.config.BackendURL,
		"version": s.config.Version,
	}).Debug("Starting MCP server in stdio mode")

	errWriter := s.logger.WriterLevel(logrus.ErrorLevel)
	defer errWriter.Close()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(errWriter, "", 0))
	if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
