// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes banner tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/noteservice"
)

// ViewID is the view MCP resolutions are recorded under.
const ViewID = "mcp"

const contractURI = "bannerd://banner-contract"

// Server wraps the MCP server with banner tools.
type Server struct {
	mcp     *server.MCPServer
	notes   *noteservice.Service
	banners *banner.Service
}

// New creates a new MCP server with all banner tools registered.
func New(notes *noteservice.Service, banners *banner.Service, version string) *Server {
	s := &Server{notes: notes, banners: banners}

	s.mcp = server.NewMCPServer(
		"bannerd",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_banner",
		mcp.WithDescription("Resolve the banner of a note: where the image comes from, display and icon settings."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
		mcp.WithBoolean("refresh", mcp.Description("Ignore cached results and pick again")),
	), s.getBanner)

	s.mcp.AddTool(mcp.NewTool("classify_banner_input",
		mcp.WithDescription("Report how a banner value is interpreted: url, vaultPath, internalLink, keyword or invalid."),
		mcp.WithString("value", mcp.Required(), mcp.Description("Raw banner value")),
	), s.classifyBannerInput)

	s.mcp.AddTool(mcp.NewTool("set_banner",
		mcp.WithDescription("Set the banner of a note. Read the contract first via get_banner_contract "+
			"or the "+contractURI+" resource. An empty value removes the banner."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Vault path, [[link]], URL or comma-separated keywords")),
	), s.setBanner)

	s.mcp.AddTool(mcp.NewTool("list_vault_images",
		mcp.WithDescription("List images in the vault, optionally filtered."),
		mcp.WithString("query", mcp.Description("Case-insensitive substring of the path")),
		mcp.WithString("folder", mcp.Description("Folder to search (recursive)")),
	), s.listVaultImages)

	s.mcp.AddTool(mcp.NewTool("import_banner_image",
		mcp.WithDescription("Download an image (http(s) URL or base64 data URI) into the banner folder. "+
			"Returns the saved path and a ready-to-use banner value."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional file name (png, jpg, jpeg, gif, webp, svg)")),
	), s.importBannerImage)

	s.mcp.AddTool(mcp.NewTool("sweep_banner_cache",
		mcp.WithDescription("Drop expired banner cache entries, or all of them with force."),
		mcp.WithBoolean("force", mcp.Description("Drop every entry")),
	), s.sweepBannerCache)

	s.mcp.AddTool(mcp.NewTool("get_banner_contract",
		mcp.WithDescription("Returns the banner frontmatter contract."),
	), s.getBannerContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Banner Frontmatter Contract",
			mcp.WithResourceDescription("Frontmatter keys that control note banners."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) getBanner(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.notes.Frontmatter(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := banner.UpdateFull
	if req.GetBool("refresh", false) {
		mode = banner.UpdateForce
	}
	st := s.banners.ResolveAndAcquire(ctx, path, ViewID, mode)
	if st == nil {
		return mcp.NewToolResultText(fmt.Sprintf("no banner: %s", path)), nil
	}
	return jsonResult(st), nil
}

func (s *Server) classifyBannerInput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(s.banners.Classify(value))), nil
}

func (s *Server) setBanner(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := req.GetString("value", "")
	nf, err := s.notes.SelectBanner(ctx, path, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(nf), nil
}

func (s *Server) listVaultImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imgs, err := s.notes.Images(ctx, req.GetString("query", ""), req.GetString("folder", ""), 200)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(imgs) == 0 {
		return mcp.NewToolResultText("no images found"), nil
	}
	return mcp.NewToolResultText(strings.Join(imgs, "\n")), nil
}

type importResult struct {
	SavedPath   string `json:"savedPath"`
	BannerValue string `json:"bannerValue"`
}

func (s *Server) importBannerImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := s.notes.Import(ctx, rawURL, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(importResult{SavedPath: saved, BannerValue: "[[" + saved + "]]"}), nil
}

func (s *Server) sweepBannerCache(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := s.banners.Sweep(req.GetBool("force", false))
	return mcp.NewToolResultText(fmt.Sprintf("removed %d entries", n)), nil
}

func (s *Server) getBannerContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BannerContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     BannerContract,
		},
	}, nil
}
