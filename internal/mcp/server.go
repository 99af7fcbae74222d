// Package mcp exposes the recipe search service as MCP tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/service"
)

const (
	// ServerName is the MCP server name
	ServerName = "recipe-search"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	service *service.Service
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance around an assembled service
func NewServer(svc *service.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		service: svc,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server starting", zap.String("name", ServerName), zap.String("version", ServerVersion))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(addRecipesTool(), s.handleAddRecipes)
	s.mcp.AddTool(getRecipeTool(), s.handleGetRecipe)
	s.mcp.AddTool(searchRecipesTool(), s.handleSearchRecipes)
	s.mcp.AddTool(setUserProfileTool(), s.handleSetUserProfile)
	s.mcp.AddTool(getUserProfileTool(), s.handleGetUserProfile)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(indexJobStatusTool(), s.handleIndexJobStatus)
	s.mcp.AddTool(chatByRecipeTool(), s.handleChatByRecipe)
	s.mcp.AddTool(resetDataTool(), s.handleResetData)
	s.mcp.AddTool(getHealthTool(), s.handleGetHealth)
}
