package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toolgateway/registry/pkg/logger"
)

// Auditor wraps an http.Handler with structured audit logging of every
// request the facade serves (§6, §7: backend and state errors are logged
// with full detail even though clients only see a safe message).
type Auditor struct {
	config *Config
}

// NewAuditor constructs an Auditor. A nil config disables logging.
func NewAuditor(config *Config) *Auditor {
	if config == nil {
		config = &Config{}
	}
	return &Auditor{config: config}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	auditor    *Auditor
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if rw.auditor.config.IncludeResponseData && rw.body != nil {
		if rw.body.Len()+len(data) <= rw.auditor.config.MaxDataSize {
			rw.body.Write(data)
		}
	}
	return rw.ResponseWriter.Write(data)
}

// Middleware returns the chi-compatible HTTP middleware.
func (a *Auditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		var requestData []byte
		if a.config.IncludeRequestData && r.Body != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, int64(a.config.MaxDataSize)+1))
			if err == nil && len(body) <= a.config.MaxDataSize {
				requestData = body
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK, auditor: a}
		if a.config.IncludeResponseData {
			rw.body = &bytes.Buffer{}
		}

		next.ServeHTTP(rw, r)

		a.logAuditEvent(r, rw, requestData, time.Since(start))
	})
}

func (a *Auditor) logAuditEvent(r *http.Request, rw *responseWriter, requestData []byte, duration time.Duration) {
	eventType := a.determineEventType(r)
	if !a.config.ShouldAuditEvent(eventType) {
		return
	}

	outcome := determineOutcome(rw.statusCode)
	source := a.extractSource(r)
	subjects := a.extractSubjects(r)
	component := a.component()

	event := NewAuditEvent(eventType, source, outcome, subjects, component)
	event.WithTarget(a.extractTarget(r, eventType, requestData))
	a.addMetadata(event, r, duration, rw)
	a.addEventData(event, rw, requestData)

	a.logEvent(event)
}

// determineEventType maps a request path to one of the MCP-specific event
// types when it matches a known facade route, falling back to a generic
// HTTP event otherwise.
func (*Auditor) determineEventType(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/mcp/call_tool") || strings.HasSuffix(path, "/mcp/call_tool_summarized"):
		return EventTypeMCPToolCall
	case strings.HasSuffix(path, "/mcp/list_tools"):
		return EventTypeMCPToolsList
	case strings.HasSuffix(path, "/mcp/find_tool"):
		return EventTypeMCPRequest
	case strings.Contains(path, "tools://") || strings.Contains(path, "/resources/"):
		return EventTypeMCPResourceRead
	default:
		return EventTypeHTTPRequest
	}
}

func determineOutcome(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return OutcomeDenied
	case statusCode >= 400 && statusCode < 500:
		return OutcomeFailure
	case statusCode >= 500:
		return OutcomeError
	default:
		return OutcomeSuccess
	}
}

func (a *Auditor) extractSource(r *http.Request) EventSource {
	source := EventSource{Type: SourceTypeNetwork, Value: clientIP(r), Extra: map[string]any{}}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		source.Extra[SourceExtraKeyUserAgent] = ua
	}
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		source.Extra[SourceExtraKeyRequestID] = reqID
	}
	return source
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// extractSubjects identifies the caller. This system authenticates the
// admin surface with a single shared key (§9 redesign: constant-time
// compare, not per-user JWT claims), so the only subject distinction worth
// recording is whether the request carried it.
func (*Auditor) extractSubjects(r *http.Request) map[string]string {
	subjects := map[string]string{SubjectKeyUser: "anonymous"}
	if r.Header.Get("Authorization") != "" || r.Header.Get("X-Admin-Key") != "" {
		subjects[SubjectKeyUser] = "admin"
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		subjects[SubjectKeyClientName] = ua
	}
	return subjects
}

func (a *Auditor) component() string {
	if a.config.Component != "" {
		return a.config.Component
	}
	return ComponentRegistry
}

// extractTarget pulls the endpoint, method, and - for a tool call - the
// tool name out of the request so an operator can grep audit logs by tool
// without re-parsing the captured body.
func (*Auditor) extractTarget(r *http.Request, eventType string, requestData []byte) map[string]string {
	target := map[string]string{
		TargetKeyEndpoint: r.URL.Path,
		TargetKeyMethod:   r.Method,
	}
	switch eventType {
	case EventTypeMCPToolCall:
		target[TargetKeyType] = TargetTypeTool
		if name := toolNameFromBody(requestData); name != "" {
			target[TargetKeyName] = name
		}
	case EventTypeMCPResourceRead:
		target[TargetKeyType] = TargetTypeResource
	default:
		target[TargetKeyType] = "endpoint"
	}
	return target
}

func toolNameFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		ToolName string `json:"tool_name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.ToolName
}

func (*Auditor) addMetadata(event *AuditEvent, r *http.Request, duration time.Duration, rw *responseWriter) {
	event.Metadata.Extra[MetadataExtraKeyDuration] = duration.Milliseconds()
	event.Metadata.Extra[MetadataExtraKeyTransport] = "http"
	if rw.body != nil {
		event.Metadata.Extra[MetadataExtraKeyResponseSize] = rw.body.Len()
	}
	_ = r
}

func (a *Auditor) addEventData(event *AuditEvent, rw *responseWriter, requestData []byte) {
	if !a.config.IncludeRequestData && !a.config.IncludeResponseData {
		return
	}
	data := map[string]any{}
	if a.config.IncludeRequestData && len(requestData) > 0 {
		data["request"] = rawOrString(requestData)
	}
	if a.config.IncludeResponseData && rw.body != nil && rw.body.Len() > 0 {
		data["response"] = rawOrString(rw.body.Bytes())
	}
	if len(data) == 0 {
		return
	}
	if encoded, err := json.Marshal(data); err == nil {
		raw := json.RawMessage(encoded)
		event.WithData(&raw)
	}
}

func rawOrString(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		return v
	}
	return string(b)
}

func (*Auditor) logEvent(event *AuditEvent) {
	encoded, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("audit: failed to marshal event: %v", err)
		return
	}
	logger.Info(string(encoded))
}
