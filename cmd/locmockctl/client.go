package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// apiError is the error body returned by the daemon.
type apiError struct {
	Status int
	Msg    string `json:"error"`
	Hint   string `json:"hint"`
}

func (e *apiError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (HTTP %d)\n\n%s", e.Msg, e.Status, e.Hint)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Msg, e.Status)
}

// call sends body (if non-nil) as JSON and returns the raw response.
func call(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	base := strings.TrimRight(apiAddr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach daemon at %s: %w", base, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		e := &apiError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(raw, e); jerr != nil || e.Msg == "" {
			e.Msg = strings.TrimSpace(string(raw))
		}
		return nil, e
	}
	return raw, nil
}

// isAPIStatus reports whether err is a daemon error with the given HTTP status.
func isAPIStatus(err error, status int) bool {
	var e *apiError
	return errors.As(err, &e) && e.Status == status
}
