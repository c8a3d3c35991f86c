// Package mcp exposes the orchestrator as an MCP server, so agent hosts can
// connect devices, browse the action library, and drive runs.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ensemble "github.com/ensemble-dev/ensemble"
	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// RunResponse is the structured result of run control tools.
type RunResponse struct {
	Status domain.RunStatus `json:"status" jsonschema_description:"The run state after the operation"`
}

// Server wraps an Orchestrator and exposes it over MCP.
type Server struct {
	orc       *ensemble.Orchestrator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(orc *ensemble.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orc:       orc,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("ensemble-mcp", ensemble.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on the given port until the context is canceled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "addr", addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown mcp server: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_devices",
		mcp.WithDescription("List the connected devices."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(s.orc.Devices())
	})

	s.mcpServer.AddTool(mcp.NewTool("connect_device",
		mcp.WithDescription("Connect to a device by exact name or name prefix."),
		mcp.WithString("name", mcp.Description("Exact device name")),
		mcp.WithString("prefix", mcp.Description("Device name prefix, used when name is empty")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name, _ := args["name"].(string)
		prefix, _ := args["prefix"].(string)
		info, err := s.orc.Connect(ctx, ports.DeviceSelector{Name: name, Prefix: prefix})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("connect failed: %v", err)), nil
		}
		return textResult(info)
	})

	s.mcpServer.AddTool(mcp.NewTool("disconnect_device",
		mcp.WithDescription("Disconnect a device by its session id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Session id from list_devices")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["id"].(float64)
		if !ok {
			return mcp.NewToolResultError("id must be a number"), nil
		}
		s.orc.Disconnect(int(id))
		return mcp.NewToolResultText("disconnected"), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("list_capabilities",
		mcp.WithDescription("List the union of capabilities declared by connected devices."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(s.orc.Capabilities())
	})

	s.mcpServer.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List the stored actions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		actions, err := s.orc.Store().List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return textResult(actions)
	})

	runTool := mcp.NewTool("run_action",
		mcp.WithDescription("Start a run of a stored action against every connected device."),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("Identifier of the action to run")),
		mcp.WithString("mode", mcp.Description("single_pass (default) or repeat")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRun))

	stopTool := mcp.NewTool("stop_run",
		mcp.WithDescription("Stop the active run. Graceful stops finish the current iteration; forced stops abort immediately."),
		mcp.WithBoolean("force", mcp.Description("Abort mid-sequence instead of waiting for the iteration boundary")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(stopTool, mcp.NewStructuredToolHandler(s.handleStop))

	statusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Report the current run state."),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleStatus))
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	actionID, _ := args["action_id"].(string)
	mode := domain.ModeSinglePass
	if m, ok := args["mode"].(string); ok && m != "" {
		mode = domain.Mode(m)
	}
	if err := s.orc.Run(ctx, actionID, mode); err != nil {
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	return RunResponse{Status: s.orc.Status()}, nil
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	if force, _ := args["force"].(bool); force {
		s.orc.ForceStop()
	} else {
		s.orc.Stop()
	}
	return RunResponse{Status: s.orc.Status()}, nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	return RunResponse{Status: s.orc.Status()}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("ensemble://actions", "Stored Action Library",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := s.orc.ExportActions(ctx)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      "ensemble://actions",
			MIMEType: "application/json",
			Text:     string(raw),
		}}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource("ensemble://devices", "Connected Devices",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(s.orc.Devices())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      "ensemble://devices",
			MIMEType: "application/json",
			Text:     string(raw),
		}}, nil
	})
}

func textResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
