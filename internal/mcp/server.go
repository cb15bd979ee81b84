package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paularlott/mcp"

	"github.com/jlauha/seuranta/internal/log"
	"github.com/jlauha/seuranta/internal/model"
	"github.com/jlauha/seuranta/internal/presence"
	"github.com/jlauha/seuranta/internal/storage"
)

// Server wraps the MCP server with the presence engine and storage.
type Server struct {
	mcpServer   *mcp.Server
	engine      *presence.Engine
	storage     storage.Storage
	bearerToken string
}

// NewServer creates a new MCP server for presence tracking.
func NewServer(engine *presence.Engine, store storage.Storage, bearerToken string) *Server {
	s := &Server{
		mcpServer:   mcp.NewServer("seuranta", "1.0.0"),
		engine:      engine,
		storage:     store,
		bearerToken: bearerToken,
	}
	s.registerTools()
	return s
}

// registerTools registers all presence tools.
func (s *Server) registerTools() {
	// presence_list - Who is currently present
	s.mcpServer.RegisterTool(
		mcp.NewTool("presence_list", "List the names of tracked entities currently present on the network"),
		s.handlePresenceList,
	)

	// entity_list - List all tracked entities
	s.mcpServer.RegisterTool(
		mcp.NewTool("entity_list", "List all tracked entities"),
		s.handleEntityList,
	)

	// entity_get - Get one tracked entity with its devices
	s.mcpServer.RegisterTool(
		mcp.NewTool("entity_get", "Get a tracked entity by ID, including its devices",
			mcp.String("id", "Entity ID", mcp.Required()),
		),
		s.handleEntityGet,
	)

	// entity_rename - Rename a tracked entity
	s.mcpServer.RegisterTool(
		mcp.NewTool("entity_rename", "Rename a tracked entity. The new name is sanitized to alphanumerics and must be unique.",
			mcp.String("id", "Entity ID", mcp.Required()),
			mcp.String("name", "New display name", mcp.Required()),
		),
		s.handleEntityRename,
	)

	// device_list - List all registered devices
	s.mcpServer.RegisterTool(
		mcp.NewTool("device_list", "List all registered devices and their owning entities"),
		s.handleDeviceList,
	)
}

// HandleRequest handles MCP HTTP requests with optional bearer token
// authentication.
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	log.Debug("MCP request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	if s.bearerToken != "" {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			log.Warn("MCP request missing Authorization header", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			log.Warn("MCP request invalid Authorization format", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid Authorization format", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != s.bearerToken {
			log.Warn("MCP request invalid token", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
	}

	s.mcpServer.HandleRequest(w, r)
}

// Tool handlers

func (s *Server) handlePresenceList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	names, err := s.engine.PresentNames()
	if err != nil {
		log.Error("MCP presence list failed", "error", err)
		return nil, mcp.NewToolErrorInternal("failed to compute presence: " + err.Error())
	}

	log.Debug("MCP presence list completed", "count", len(names))

	if len(names) == 0 {
		return mcp.NewToolResponseText("Nobody is present"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%d present:\n", len(names)))
	for _, name := range names {
		result.WriteString("- " + name + "\n")
	}

	return mcp.NewToolResponseText(result.String()), nil
}

func (s *Server) handleEntityList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	entities, err := s.storage.ListEntities()
	if err != nil {
		log.Error("MCP entity list failed", "error", err)
		return nil, mcp.NewToolErrorInternal("failed to list entities: " + err.Error())
	}

	if len(entities) == 0 {
		return mcp.NewToolResponseText("No tracked entities found"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d tracked entities:\n\n", len(entities)))
	for _, e := range entities {
		result.WriteString(s.formatEntitySummary(&e))
		result.WriteString("\n")
	}

	return mcp.NewToolResponseText(result.String()), nil
}

func (s *Server) handleEntityGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	id, err := req.String("id")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("id is required: " + err.Error())
	}

	entity, err := s.storage.GetEntity(id)
	if err != nil {
		if isCallerFault(err) {
			return nil, mcp.NewToolErrorInvalidParams("entity not found: " + id)
		}
		log.Error("MCP entity get failed", "error", err, "id", id)
		return nil, mcp.NewToolErrorInternal("failed to get entity: " + err.Error())
	}

	return mcp.NewToolResponseText(s.formatEntitySummary(entity)), nil
}

func (s *Server) handleEntityRename(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	id, err := req.String("id")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("id is required: " + err.Error())
	}

	name, err := req.String("name")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("name is required: " + err.Error())
	}

	entity, err := s.engine.Rename(id, name)
	if err != nil {
		if isCallerFault(err) {
			return nil, mcp.NewToolErrorInvalidParams("cannot rename entity: " + err.Error())
		}
		log.Error("MCP entity rename failed", "error", err, "id", id, "name", name)
		return nil, mcp.NewToolErrorInternal("failed to rename entity: " + err.Error())
	}

	log.Info("MCP entity renamed", "id", entity.ID, "name", entity.Name)
	return mcp.NewToolResponseText(fmt.Sprintf("Entity renamed to %s (ID: %s)", entity.Name, entity.ID)), nil
}

func (s *Server) handleDeviceList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	devices, err := s.storage.ListDevices()
	if err != nil {
		log.Error("MCP device list failed", "error", err)
		return nil, mcp.NewToolErrorInternal("failed to list devices: " + err.Error())
	}

	if len(devices) == 0 {
		return mcp.NewToolResponseText("No devices registered"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d devices:\n\n", len(devices)))
	for _, d := range devices {
		result.WriteString(s.formatDeviceSummary(&d))
		result.WriteString("\n")
	}

	return mcp.NewToolResponseText(result.String()), nil
}

// Utility functions

// isCallerFault reports whether err stems from the request itself (missing
// entity, taken name, name with no valid characters) rather than a backend
// failure, so it is surfaced as an invalid-params tool error and not logged
// as an internal one.
func isCallerFault(err error) bool {
	return errors.Is(err, storage.ErrEntityNotFound) ||
		errors.Is(err, storage.ErrNameConflict) ||
		errors.Is(err, presence.ErrEmptyName)
}

func (s *Server) formatEntitySummary(entity *model.TrackedEntity) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Name: %s\n", entity.Name))
	result.WriteString(fmt.Sprintf("ID: %s\n", entity.ID))
	result.WriteString(fmt.Sprintf("Created: %s\n", entity.CreatedAt.Format("2006-01-02 15:04")))
	if len(entity.Devices) > 0 {
		result.WriteString("Devices:\n")
		for _, d := range entity.Devices {
			if d.Hostname != "" {
				result.WriteString(fmt.Sprintf("  - %s (%s)\n", d.MAC, d.Hostname))
			} else {
				result.WriteString(fmt.Sprintf("  - %s\n", d.MAC))
			}
		}
	}
	return result.String()
}

func (s *Server) formatDeviceSummary(device *model.Device) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("MAC: %s\n", device.MAC))
	if device.Hostname != "" {
		result.WriteString(fmt.Sprintf("Hostname: %s\n", device.Hostname))
	}
	result.WriteString(fmt.Sprintf("Entity ID: %s\n", device.EntityID))
	if entity, err := s.storage.GetEntity(device.EntityID); err == nil {
		result.WriteString(fmt.Sprintf("Entity: %s\n", entity.Name))
	}
	return result.String()
}

// GetHTTPHandler returns the HTTP handler for the MCP server.
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.HandleRequest
}

// LogStartup logs MCP server startup information.
func (s *Server) LogStartup() {
	log.Info("MCP Server initialized", "version", "1.0.0")
	if s.bearerToken != "" {
		log.Info("MCP authentication enabled", "type", "Bearer token")
	} else {
		log.Info("MCP authentication disabled")
	}
	tools := s.mcpServer.ListTools()
	log.Info("MCP tools registered", "count", len(tools))
}
