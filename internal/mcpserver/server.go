// Package mcpserver provides an MCP (Model Context Protocol) server
// exposing read-only vault tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// Server wraps the MCP server with muninn tools.
type Server struct {
	mcp   *server.MCPServer
	store storage.Provider
	reg   *registry.DB
}

// New creates an MCP server with all muninn tools registered.
func New(store storage.Provider, reg *registry.DB) *Server {
	s := &Server{store: store, reg: reg}

	s.mcp = server.NewMCPServer(
		"Muninn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title or path."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path to the note (e.g. storage/Tech/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("note_status",
		mcp.WithDescription("Report a note's lifecycle status and, for archive/synthesis pairs, its partner."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path to the note")),
	), s.noteStatus)

	s.mcp.AddTool(mcp.NewTool("list_duplicates",
		mcp.WithDescription("List quarantined duplicates and the archived notes they matched."),
	), s.listDuplicates)

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
	notes, err := s.reg.SearchNotes(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type hit struct {
		Path   string `json:"path"`
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	hits := make([]hit, len(notes))
	for i, n := range notes {
		hits[i] = hit{Path: n.FilePath, Title: n.Title, Status: string(n.Status)}
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) noteStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.reg.GetNoteByPath(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}

	info := map[string]any{
		"path":       note.FilePath,
		"title":      note.Title,
		"status":     string(note.Status),
		"word_count": note.WordCount,
	}
	if note.ParentID != nil {
		if partner, pairErr := s.reg.PairOf(note.ID); pairErr == nil && partner != nil {
			info["pair_path"] = partner.FilePath
			info["pair_status"] = string(partner.Status)
		}
	}
	out, _ := json.MarshalIndent(info, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDuplicates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.reg.ListDuplicates()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no duplicates recorded"), nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
