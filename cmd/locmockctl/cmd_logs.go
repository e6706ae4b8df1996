package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func runLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	out := cmd.OutOrStdout()

	switch {
	case logClear:
		if _, err := call(ctx, http.MethodDelete, "/api/logs", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "debug log cleared")
		return nil

	case logSave:
		raw, err := call(ctx, http.MethodPost, "/api/logs/save", nil, nil)
		if err != nil {
			return err
		}
		var saved struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(raw, &saved); err != nil {
			return err
		}
		fmt.Fprintf(out, "debug log saved to %s\n", saved.Path)
		return nil

	case logStats:
		raw, err := call(ctx, http.MethodGet, "/api/logs/stats", nil, nil)
		if err != nil {
			return err
		}
		stats := map[string]int{}
		if err := json.Unmarshal(raw, &stats); err != nil {
			return err
		}
		levels := make([]string, 0, len(stats))
		for l := range stats {
			if l != "total" {
				levels = append(levels, l)
			}
		}
		sort.Strings(levels)
		for _, l := range levels {
			fmt.Fprintf(out, "%-6s %d\n", l, stats[l])
		}
		fmt.Fprintf(out, "%-6s %d\n", "total", stats["total"])
		return nil
	}

	q := url.Values{}
	if logLevel != "" {
		q.Set("level", logLevel)
	}
	if logTag != "" {
		q.Set("tag", logTag)
	}
	if logQuery != "" {
		q.Set("q", logQuery)
	}
	if !asJSON {
		q.Set("format", "text")
	}
	raw, err := call(ctx, http.MethodGet, "/api/logs", q, nil)
	if err != nil {
		return err
	}
	fmt.Fprint(out, strings.TrimRight(string(raw), "\n")+"\n")
	return nil
}
