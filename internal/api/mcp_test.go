package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/naraboard/internal/storage"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	env := setup(t, "")
	return MCPDeps{
		Store:   env.store,
		Cleaner: env.cleaner,
		Now:     func() time.Time { return fixedNow },
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), req mcp.CallToolRequest) string {
	t.Helper()
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	return toolText(t, result)
}

func TestMCPTool_SearchJobs(t *testing.T) {
	deps := newTestMCPDeps(t)

	text := callTool(t, mcpSearchJobs(deps), makeCallToolRequest("search_jobs", map[string]interface{}{
		"query": "연구",
		"limit": 5,
	}))

	var out struct {
		Total int          `json:"total"`
		Jobs  []jobSummary `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if out.Total != 1 || len(out.Jobs) != 1 || out.Jobs[0].ID != "PB2" {
		t.Errorf("search result = %+v", out)
	}
}

func TestMCPTool_SearchJobs_EmptyQueryListsAll(t *testing.T) {
	deps := newTestMCPDeps(t)

	text := callTool(t, mcpSearchJobs(deps), makeCallToolRequest("search_jobs", map[string]interface{}{"limit": 500}))
	if !strings.Contains(text, `"total":3`) {
		t.Errorf("response = %s", text)
	}
}

func TestMCPTool_GetJob(t *testing.T) {
	deps := newTestMCPDeps(t)

	text := callTool(t, mcpGetJob(deps), makeCallToolRequest("get_job", map[string]interface{}{"id": "PB1"}))
	var out struct {
		Job         jobSummary           `json:"job"`
		Text        string               `json:"text"`
		Attachments []storage.Attachment `json:"attachments"`
		OriginalURL string               `json:"originalUrl"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if out.Job.WorkRegion != "서울특별시" || out.Text != "근무지: 서울" || len(out.Attachments) != 1 {
		t.Errorf("get_job = %+v", out)
	}
}

func TestMCPTool_GetJob_Errors(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpGetJob(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("get_job", map[string]interface{}{}))
	if !result.IsError {
		t.Error("missing id: expected tool error")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("get_job", map[string]interface{}{"id": "ghost"}))
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("unknown id: result = %+v", result)
	}
}

func TestMCPTool_JobStats(t *testing.T) {
	deps := newTestMCPDeps(t)

	text := callTool(t, mcpJobStats(deps), makeCallToolRequest("job_stats", nil))
	var st storage.Stats
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if st.TotalJobs != 3 || st.TotalDepartments != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMCPTool_RetentionReport(t *testing.T) {
	deps := newTestMCPDeps(t)

	text := callTool(t, mcpRetentionReport(deps), makeCallToolRequest("retention_report", nil))
	if !strings.Contains(text, `"deleteStale":1`) {
		t.Errorf("report = %s", text)
	}

	deps.Cleaner = nil
	result, _ := mcpRetentionReport(deps)(context.Background(), makeCallToolRequest("retention_report", nil))
	if !result.IsError {
		t.Error("expected error without a cleaner")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps := newTestMCPDeps(t)

	contents, err := mcpResourceRecent(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "jobs://recent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var jobs []jobSummary
	if err := json.Unmarshal([]byte(tc.Text), &jobs); err != nil {
		t.Fatalf("failed to parse resource JSON: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("recent = %d jobs, want 3", len(jobs))
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps := newTestMCPDeps(t)
	search := mcpSearchJobs(deps)
	stats := mcpJobStats(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := search(context.Background(), makeCallToolRequest("search_jobs", nil)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := stats(context.Background(), makeCallToolRequest("job_stats", nil)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestMCPDeps(t)); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
