package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/service"
)

// MCPServer exposes the control API as Model Context Protocol tools
type MCPServer struct {
	api        *service.ControlAPI
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewMCPServer registers every tool and wraps them in a streamable HTTP handler
func NewMCPServer(api *service.ControlAPI) *MCPServer {
	m := &MCPServer{api: api}

	m.mcpServer = server.NewMCPServer(
		"AudioBridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	m.registerTools()
	m.httpServer = server.NewStreamableHTTPServer(m.mcpServer)

	return m
}

func directionParam() mcp.ToolOption {
	return mcp.WithString("direction",
		mcp.Description("Device direction: 'output' (playback) or 'input' (capture)"),
		mcp.Enum("output", "input"),
		mcp.DefaultString("output"),
	)
}

func (m *MCPServer) registerTools() {
	m.mcpServer.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List the audio devices of one direction. Devices without channels in that direction are omitted."),
			directionParam(),
			mcp.WithString("format",
				mcp.Description("Output format: 'structured' for JSON device records or 'human' for a numbered listing"),
				mcp.DefaultString("structured"),
			),
		),
		m.handleListDevices,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("create_aggregate",
			mcp.WithDescription("Combine several devices into one named aggregate device. Each entry of 'devices' is a case-insensitive name fragment; the first match becomes the master. Nothing is created when an aggregate with this name already exists."),
			directionParam(),
			mcp.WithArray("devices",
				mcp.Required(),
				mcp.Description("Device name fragments, master first"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Display name of the new aggregate device"),
			),
		),
		m.handleCreateAggregate,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("set_default_output",
			mcp.WithDescription("Make the first output device whose name contains the fragment the system default output"),
			mcp.WithString("device",
				mcp.Required(),
				mcp.Description("Case-insensitive device name fragment"),
			),
		),
		m.handleSetDefault,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("start_recording",
			mcp.WithDescription("Start recording a device to a file. The default output is redirected to the device while recording."),
			mcp.WithString("device",
				mcp.Description("Device name fragment; empty uses the configured default device"),
			),
			mcp.WithString("output",
				mcp.Description("File name inside the output directory; empty generates a timestamped name"),
			),
		),
		m.handleStartRecording,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("stop_recording",
			mcp.WithDescription("Stop a recording and restore the default output"),
			mcp.WithNumber("pid",
				mcp.Description("Process id of the capture process; 0 stops the recording owned by this server"),
				mcp.DefaultNumber(0),
			),
		),
		m.handleStopRecording,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("get_device_name",
			mcp.WithDescription("Return the name of the device at a zero-based position in the device listing"),
			mcp.WithNumber("index",
				mcp.Required(),
				mcp.Description("Zero-based index"),
			),
			directionParam(),
		),
		m.handleGetDeviceName,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("recording_status",
			mcp.WithDescription("Report the recording state, the active session and the last failure"),
		),
		m.handleStatus,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("list_recordings",
			mcp.WithDescription("List finished recordings in the output directory, newest first"),
		),
		m.handleListRecordings,
	)
}

// ServeHTTP hands the request to the streamable HTTP transport
func (m *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.httpServer.ServeHTTP(w, r)
}

// toolResult renders an envelope as JSON text, flagged as an error when it failed
func toolResult(env service.Envelope) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	if !env.OK {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolDirection(request mcp.CallToolRequest) (audio.Direction, error) {
	return audio.ParseDirection(request.GetString("direction", "output"))
}

func (m *MCPServer) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := toolDirection(request)
	if err != nil {
		return toolResult(service.Result(nil, err))
	}
	format, err := service.ParseFormat(request.GetString("format", "structured"))
	if err != nil {
		return toolResult(service.Result(nil, err))
	}

	env := m.api.ListDevices(ctx, dir, format)
	if listing, ok := env.Data.(service.DeviceListing); ok && format == service.FormatHuman {
		return mcp.NewToolResultText(listing.Text), nil
	}
	return toolResult(env)
}

func (m *MCPServer) handleCreateAggregate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := toolDirection(request)
	if err != nil {
		return toolResult(service.Result(nil, err))
	}
	devices := request.GetStringSlice("devices", nil)
	name := request.GetString("name", "")

	return toolResult(m.api.CreateAggregate(ctx, dir, devices, name))
}

func (m *MCPServer) handleSetDefault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.api.SetDefault(ctx, request.GetString("device", "")))
}

func (m *MCPServer) handleStartRecording(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	device := request.GetString("device", "")
	output := request.GetString("output", "")
	return toolResult(m.api.StartRecording(ctx, device, output))
}

func (m *MCPServer) handleStopRecording(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid := request.GetInt("pid", 0)
	return toolResult(m.api.StopRecording(ctx, pid))
}

func (m *MCPServer) handleGetDeviceName(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := toolDirection(request)
	if err != nil {
		return toolResult(service.Result(nil, err))
	}
	index := request.GetInt("index", -1)
	return toolResult(m.api.GetDeviceNameAtIndex(ctx, dir, index))
}

func (m *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.api.Status(ctx))
}

func (m *MCPServer) handleListRecordings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.api.ListRecordings(ctx))
}
