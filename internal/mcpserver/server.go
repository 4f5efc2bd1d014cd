// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Murmur voice notes for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/repo"
)

// Server wraps the MCP server with Murmur tools.
type Server struct {
	mcp   *server.MCPServer
	repos *repo.Repos
}

// noteSummary is the tool-facing note shape. Audio bytes and internal
// linkage fields stay out of tool output.
type noteSummary struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Status        string   `json:"status"`
	Summary       *string  `json:"summary,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	FolderID      *string  `json:"folderId,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	Transcription *string  `json:"transcription,omitempty"`
}

// New creates a new MCP server with all Murmur tools registered.
func New(repos *repo.Repos) *Server {
	s := &Server{repos: repos}

	s.mcp = server.NewMCPServer(
		"Murmur",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search voice notes by title, transcription and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a single voice note, including its full transcription."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_recent_notes",
		mcp.WithDescription("List the most recently created voice notes, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes to return (default 5)")),
	), s.listRecentNotes)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List all folders with their ids."),
	), s.listFolders)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.repos.Notes.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(toSummaries(notes, false), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.repos.Notes.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if note == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(toSummary(*note, true), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRecentNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 5)
	notes, err := s.repos.Notes.GetRecent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(toSummaries(notes, false), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listFolders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.repos.Folders.GetAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(folders) == 0 {
		return mcp.NewToolResultText("no folders"), nil
	}
	lines := make([]string, 0, len(folders))
	for _, f := range folders {
		lines = append(lines, fmt.Sprintf("%s\t%s", f.ID, f.Name))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func toSummary(n models.VoiceNote, withTranscription bool) noteSummary {
	s := noteSummary{
		ID:        n.ID,
		Title:     n.Title,
		Status:    string(n.Status),
		Summary:   n.Summary,
		Tags:      n.Tags,
		FolderID:  n.FolderID,
		CreatedAt: time.UnixMilli(n.CreatedAt).UTC().Format(time.RFC3339),
	}
	if s.Title == "" {
		s.Title = n.DefaultTitle
	}
	if withTranscription {
		s.Transcription = n.Transcription
	}
	return s
}

func toSummaries(notes []models.VoiceNote, withTranscription bool) []noteSummary {
	out := make([]noteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, toSummary(n, withTranscription))
	}
	return out
}
