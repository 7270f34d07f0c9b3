package audit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditor_Middleware_DisabledSkipsLogging(t *testing.T) {
	t.Parallel()

	auditor := NewAuditor(&Config{Enabled: false})
	called := false
	handler := auditor.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp/list_tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditor_DetermineEventType(t *testing.T) {
	t.Parallel()

	auditor := NewAuditor(DefaultConfig())

	cases := []struct {
		path string
		want string
	}{
		{"/mcp/call_tool", EventTypeMCPToolCall},
		{"/mcp/call_tool_summarized", EventTypeMCPToolCall},
		{"/mcp/list_tools", EventTypeMCPToolsList},
		{"/mcp/find_tool", EventTypeMCPRequest},
		{"/admin/tools", EventTypeHTTPRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		require.Equal(t, tc.want, auditor.determineEventType(req), tc.path)
	}
}

func TestDetermineOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, OutcomeSuccess, determineOutcome(http.StatusOK))
	require.Equal(t, OutcomeDenied, determineOutcome(http.StatusUnauthorized))
	require.Equal(t, OutcomeDenied, determineOutcome(http.StatusForbidden))
	require.Equal(t, OutcomeFailure, determineOutcome(http.StatusBadRequest))
	require.Equal(t, OutcomeError, determineOutcome(http.StatusInternalServerError))
}

func TestAuditor_ExtractSubjects(t *testing.T) {
	t.Parallel()

	auditor := NewAuditor(DefaultConfig())

	anonymous := httptest.NewRequest(http.MethodGet, "/mcp/list_tools", nil)
	require.Equal(t, "anonymous", auditor.extractSubjects(anonymous)[SubjectKeyUser])

	admin := httptest.NewRequest(http.MethodPost, "/admin/tools", nil)
	admin.Header.Set("X-Admin-Key", "secret")
	require.Equal(t, "admin", auditor.extractSubjects(admin)[SubjectKeyUser])
}

func TestAuditor_Middleware_LogsToolName(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IncludeRequestData = true
	auditor := NewAuditor(cfg)

	var seen []byte
	handler := auditor.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := strings.NewReader(`{"tool_name":"weather.lookup","arguments":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp/call_tool", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// The middleware captures the body and hands it on intact; the target it
	// logs for this path carries the tool name parsed from that body.
	target := auditor.extractTarget(req, auditor.determineEventType(req), seen)
	require.Equal(t, "weather.lookup", target[TargetKeyName])
}
