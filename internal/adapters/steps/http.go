package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

const defaultMaxBodyBytes = 1 << 20

// HTTPRequestStep performs one outbound HTTP call.
//
// Config: method (default GET), url, headers, query, body. A map or slice
// body is sent as JSON. Credentials "token" set a bearer Authorization header,
// "username"/"password" set basic auth. A non-2xx status is a failure.
// Output: {status, headers, body, json}.
func HTTPRequestStep(opts BuiltinOptions) Step {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "flowrun"
	}

	return Step{
		Slug:        SlugHTTP,
		Description: "Performs an HTTP request and returns status, headers and body",
		Defaults:    map[string]any{"method": http.MethodGet},
		Run: func(ctx context.Context, in Input) (core.StepResult, error) {
			req, err := buildRequest(ctx, in, userAgent)
			if err != nil {
				return core.Failed(err.Error()), nil
			}

			resp, err := client.Do(req)
			if err != nil {
				return core.StepResult{}, fmt.Errorf("executing request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			if err != nil {
				return core.StepResult{}, fmt.Errorf("reading response body: %w", err)
			}

			headers := make(map[string]any, len(resp.Header))
			for k := range resp.Header {
				headers[k] = resp.Header.Get(k)
			}
			out := map[string]any{
				"status":  resp.StatusCode,
				"headers": headers,
				"body":    string(body),
			}
			var decoded any
			if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
				out["json"] = decoded
			}

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return core.StepResult{
					Success: false,
					Data:    out,
					Error:   fmt.Sprintf("%s %s returned %s", req.Method, req.URL.Redacted(), resp.Status),
				}, nil
			}
			return core.Succeeded(out), nil
		},
	}
}

func buildRequest(ctx context.Context, in Input, userAgent string) (*http.Request, error) {
	rawURL := strings.TrimSpace(in.String("url"))
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}
	if query, ok := in.Config["query"].(map[string]any); ok {
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	method := strings.ToUpper(in.String("method"))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := ""
	switch b := in.Config["body"].(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := in.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	if token := in.Credentials["token"]; token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if user := in.Credentials["username"]; user != "" && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(user, in.Credentials["password"])
	}
	return req, nil
}
