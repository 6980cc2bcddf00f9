package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/naraboard/internal/normalize"
	"github.com/kalambet/naraboard/internal/retention"
	"github.com/kalambet/naraboard/internal/storage"
)

const mcpMaxLimit = 50

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   Store
	Cleaner Cleaner
	Now     func() time.Time
}

// NewMCPServer creates an MCP server exposing read-only job tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"naraboard",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("naraboard: Korean public-sector job postings, normalized and kept for 30 days after registration."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_jobs",
			mcp.WithDescription("Search stored job postings by title or department, newest first."),
			mcp.WithString("query", mcp.Description("Text to match in title or department; empty lists everything")),
			mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
			mcp.WithNumber("limit", mcp.Description("Results per page (default 10, max 50)")),
		),
		mcpSearchJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_job",
			mcp.WithDescription("Get one job posting with its body text and attachments."),
			mcp.WithString("id", mcp.Description("Posting id"), mcp.Required()),
		),
		mcpGetJob(deps),
	)

	s.AddTool(
		mcp.NewTool("job_stats",
			mcp.WithDescription("Count stored postings, postings closing within 3 days, postings registered in the last 7 days and departments."),
		),
		mcpJobStats(deps),
	)

	s.AddTool(
		mcp.NewTool("retention_report",
			mcp.WithDescription("Classify stored postings by the retention policy without deleting anything."),
		),
		mcpRetentionReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://recent",
			"Recent Postings",
			mcp.WithResourceDescription("The 10 most recently registered postings (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

type jobSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Department   string `json:"department"`
	WorkRegion   string `json:"workRegion"`
	Grade        string `json:"grade"`
	RegisteredOn string `json:"registeredOn"`
	ExpiresOn    string `json:"expiresOn"`
}

func summarize(p storage.Posting) jobSummary {
	return jobSummary{
		ID:           p.ID,
		Title:        p.Title,
		Department:   p.Department,
		WorkRegion:   p.WorkRegion,
		Grade:        p.Grade,
		RegisteredOn: p.RegisteredOn,
		ExpiresOn:    p.ExpiresOn,
	}
}

func mcpSearchJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		page := max(req.GetInt("page", 1), 1)
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > mcpMaxLimit {
			limit = mcpMaxLimit
		}

		postings, total, err := deps.Store.ListPostings(storage.ListQuery{Page: page, Limit: limit, Search: query})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		results := make([]jobSummary, len(postings))
		for i, p := range postings {
			results[i] = summarize(p)
		}
		return mcpJSON(map[string]any{"total": total, "page": page, "jobs": results})
	}
}

func mcpGetJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		p, err := deps.Store.GetPosting(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load job: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"job":         summarize(p),
			"text":        normalize.BodyText(p.Body),
			"extraInfo":   p.ExtraInfo,
			"attachments": p.Attachments,
			"originalUrl": normalize.OriginalURL(p.ID),
		})
	}
}

func mcpJobStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Store.StatsAsOf(retention.Today(deps.Now()))
		if err != nil {
			return mcpError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpRetentionReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Cleaner == nil {
			return mcpError("retention report not available"), nil
		}
		rep, err := deps.Cleaner.Status(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("report failed: %v", err)), nil
		}
		return mcpJSON(rep)
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		postings, _, err := deps.Store.ListPostings(storage.ListQuery{Page: 1, Limit: 10})
		if err != nil {
			return nil, fmt.Errorf("failed to list postings: %w", err)
		}

		summaries := make([]jobSummary, len(postings))
		for i, p := range postings {
			s := summarize(p)
			if utf8.RuneCountInString(s.Title) > 100 {
				s.Title = string([]rune(s.Title)[:100]) + "..."
			}
			summaries[i] = s
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal postings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
