package router

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
)

// httpEndpointConfig is implementation_code's JSON shape for HTTP_ENDPOINT
// tools: {url, method, headers?, timeout?}.
type httpEndpointConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Timeout int               `json:"timeout"`
}

// httpExecutor dispatches HTTP_ENDPOINT tools.
type httpExecutor struct {
	client      *http.Client
	certBundle  string
}

// NewHTTPExecutor constructs the HTTP_ENDPOINT executor. certBundlePath, if
// non-empty and present on disk, is loaded as a client certificate for
// outbound TLS, per §4.6 ("TLS cert bundle picked up from a known path if
// present").
func NewHTTPExecutor(certBundlePath string) *httpExecutor {
	client := &http.Client{}
	if certBundlePath != "" {
		if cert, err := tls.LoadX509KeyPair(certBundlePath, certBundlePath); err == nil {
			client.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
			}
		}
	}
	return &httpExecutor{client: client, certBundle: certBundlePath}
}

func (h *httpExecutor) Execute(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	var cfg httpEndpointConfig
	if err := json.Unmarshal([]byte(tool.ImplementationCode), &cfg); err != nil {
		return nil, regerrors.NewBackendError(fmt.Sprintf("tool %q has invalid HTTP_ENDPOINT config", tool.Name), err)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}

	var req *http.Request
	var err error
	method := strings.ToUpper(cfg.Method)
	if method == http.MethodGet || method == http.MethodDelete {
		reqURL, uerr := buildQueryURL(cfg.URL, args)
		if uerr != nil {
			return nil, regerrors.NewBackendError("building query URL", uerr)
		}
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	} else {
		body, merr := json.Marshal(args)
		if merr != nil {
			return nil, regerrors.NewBackendError("encoding request body", merr)
		}
		req, err = http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, regerrors.NewBackendError("building HTTP request", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("calling %s", cfg.URL), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, regerrors.NewBackendError("reading HTTP response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("%s returned %d", cfg.URL, resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, regerrors.NewBackendError(fmt.Sprintf("%s returned %d: %s", cfg.URL, resp.StatusCode, respBody), nil)
	}

	return parseHTTPBody(respBody), nil
}

func buildQueryURL(base string, args map[string]any) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range args {
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseHTTPBody(body []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err == nil {
		return out
	}
	return map[string]any{"raw": string(body)}
}
