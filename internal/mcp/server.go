package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"allskyd/internal/astro"
	"allskyd/internal/catalog"
	"allskyd/internal/core"
	"allskyd/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	catalog   *catalog.Catalog
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(store *store.Store, scheduler *core.Scheduler, cat *catalog.Catalog, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		store:     store,
		scheduler: scheduler,
		catalog:   cat,
		logger:    logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"allskyd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register all tools
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	// Start the stdio server
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("allsky_status",
		mcp.WithDescription("Show the capture engine state: run intent, worker, current twilight period and the recent log tail"),
	), s.handleStatus)

	mcpServer.AddTool(mcp.NewTool("allsky_start_capture",
		mcp.WithDescription("Start the automatic capture loop"),
	), s.handleStartCapture)

	mcpServer.AddTool(mcp.NewTool("allsky_stop_capture",
		mcp.WithDescription("Stop the automatic capture loop"),
	), s.handleStopCapture)

	mcpServer.AddTool(mcp.NewTool("allsky_trigger_capture",
		mcp.WithDescription("Take a single frame now, outside the automatic loop"),
		mcp.WithNumber("exposure_ms",
			mcp.Description("Fixed exposure in milliseconds; omit to run the adaptive exposure search"),
			mcp.Min(0),
		),
	), s.handleTriggerCapture)

	mcpServer.AddTool(mcp.NewTool("allsky_set_interval",
		mcp.WithDescription("Change the capture cadence of the automatic loop"),
		mcp.WithNumber("seconds",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Seconds between captures, minimum %d", core.MinIntervalSeconds)),
			mcp.Min(0),
		),
	), s.handleSetInterval)

	mcpServer.AddTool(mcp.NewTool("allsky_list_images",
		mcp.WithDescription("List captured frames, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of frames to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListImages)

	mcpServer.AddTool(mcp.NewTool("allsky_delete_sessions",
		mcp.WithDescription("Delete all frames of one or more imaging sessions. The newest frame overall is always kept"),
		mcp.WithString("sessions",
			mcp.Required(),
			mcp.Description("Comma-separated session labels, e.g. '2024-11-13,2024-11-14'"),
		),
	), s.handleDeleteSessions)

	mcpServer.AddTool(mcp.NewTool("allsky_solar_info",
		mcp.WithDescription("Show today's sunrise, sunset and twilight end times for the configured site"),
	), s.handleSolarInfo)

	mcpServer.AddTool(mcp.NewTool("allsky_capture_history",
		mcp.WithDescription("Show recent capture cycles with their exposure search outcome"),
		mcp.WithNumber("limit",
			mcp.Description("Number of cycles to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleCaptureHistory)

	s.logger.Info("MCP tools registered", "count", 9)
}

// handleStatus handles the allsky_status tool call.
func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.scheduler.Status()

	result := fmt.Sprintf("Run intent: %t\nWorker alive: %t\nCapturing: %t\nInterval: %ds\nCurrent period: %s\n",
		status.RunIntent, status.WorkerAlive, status.IsCapturing, status.IntervalSeconds, status.CurrentPeriod)
	if status.LastCaptureUnix > 0 {
		result += fmt.Sprintf("Last capture: %s\n", time.Unix(status.LastCaptureUnix, 0).Format(time.RFC3339))
	}
	if len(status.LogLines) > 0 {
		tail := status.LogLines
		if len(tail) > 10 {
			tail = tail[len(tail)-10:]
		}
		result += "\nRecent log:\n" + strings.Join(tail, "\n")
	}
	return mcp.NewToolResultText(result), nil
}

// handleStartCapture handles the allsky_start_capture tool call.
func (s *MCPServer) handleStartCapture(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.scheduler.Start(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start capture loop: %v", err)), nil
	}
	return mcp.NewToolResultText("Capture loop started"), nil
}

// handleStopCapture handles the allsky_stop_capture tool call.
func (s *MCPServer) handleStopCapture(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.scheduler.Stop(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop capture loop: %v", err)), nil
	}
	return mcp.NewToolResultText("Capture loop stopped"), nil
}

// handleTriggerCapture handles the allsky_trigger_capture tool call.
func (s *MCPServer) handleTriggerCapture(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var override *float64
	if exposureMs := mcp.ParseFloat64(request, "exposure_ms", 0); exposureMs > 0 {
		override = &exposureMs
	}

	if err := s.scheduler.TriggerOnce(override); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger capture: %v", err)), nil
	}
	if override != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Capture started at fixed %.1fms exposure", *override)), nil
	}
	return mcp.NewToolResultText("Capture started with adaptive exposure search"), nil
}

// handleSetInterval handles the allsky_set_interval tool call.
func (s *MCPServer) handleSetInterval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seconds := int(mcp.ParseFloat64(request, "seconds", 0))

	if err := s.scheduler.SetInterval(ctx, seconds); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("set interval: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Capture interval set to %ds", seconds)), nil
}

// handleListImages handles the allsky_list_images tool call.
func (s *MCPServer) handleListImages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	records, err := s.catalog.ScanAll()
	if err != nil {
		s.logger.Error("scan image dir", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("scan images: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("No images captured yet"), nil
	}
	if len(records) > limit {
		records = records[:limit]
	}

	result := fmt.Sprintf("Showing %d frames, newest first:\n\n", len(records))
	for _, record := range records {
		result += fmt.Sprintf("%s (session %s", record.Filename, record.SessionLabel)
		if record.ExposureMs != nil {
			result += fmt.Sprintf(", %dms", *record.ExposureMs)
		}
		result += fmt.Sprintf(", %d bytes)\n", record.SizeBytes)
	}
	return mcp.NewToolResultText(result), nil
}

// handleDeleteSessions handles the allsky_delete_sessions tool call.
func (s *MCPServer) handleDeleteSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseString(request, "sessions", "")
	var labels []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	if len(labels) == 0 {
		return mcp.NewToolResultError("sessions is required"), nil
	}

	result, err := s.catalog.DeleteBySessionLabels(labels)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete sessions: %v", err)), nil
	}

	text := fmt.Sprintf("Deleted %d frames from sessions %s\nPreserved newest frame: %s",
		result.DeletedCount, strings.Join(result.DeletedLabels, ", "), result.PreservedFilename)
	if len(result.Failed) > 0 {
		text += fmt.Sprintf("\nFailed: %s", strings.Join(result.Failed, "; "))
	}
	return mcp.NewToolResultText(text), nil
}

// handleSolarInfo handles the allsky_solar_info tool call.
func (s *MCPServer) handleSolarInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	site := s.scheduler.Settings().Site
	now := time.Now()

	boundaries, err := astro.DayBoundaries(now, site)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("solar info: %v", err)), nil
	}

	result := fmt.Sprintf("Sunrise: %s\nSunset: %s\nCivil twilight ends: %s\nNautical twilight ends: %s\nAstronomical twilight ends: %s\nCurrent period: %s",
		boundaries.Sunrise, boundaries.Sunset,
		boundaries.CivilTwilightEnd, boundaries.NauticalTwilightEnd, boundaries.AstronomicalTwilightEnd,
		astro.Resolve(now, site))
	if boundaries.MidnightSun {
		result += "\nNote: the sun does not set at this location today"
	}
	return mcp.NewToolResultText(result), nil
}

// handleCaptureHistory handles the allsky_capture_history tool call.
func (s *MCPServer) handleCaptureHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	runs, err := s.store.ListCaptures(ctx, limit, 0)
	if err != nil {
		s.logger.Error("list captures", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("list captures: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No capture cycles recorded yet"), nil
	}

	result := fmt.Sprintf("Last %d capture cycles:\n\n", len(runs))
	for _, run := range runs {
		result += fmt.Sprintf("%s [%s/%s]", run.CreatedAt.Local().Format("2006-01-02 15:04:05"), run.TriggeredBy, run.Outcome)
		if run.ExposureMs != nil {
			result += fmt.Sprintf(" %.1fms", *run.ExposureMs)
		}
		if run.Brightness != nil {
			result += fmt.Sprintf(" brightness %.1f", *run.Brightness)
		}
		if run.TrialCount > 0 {
			result += fmt.Sprintf(" (%d trials)", run.TrialCount)
		}
		if run.Error != nil {
			result += fmt.Sprintf(" error: %s", *run.Error)
		}
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}
