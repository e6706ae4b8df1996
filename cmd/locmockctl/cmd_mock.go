package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

type statusView struct {
	Running   bool     `json:"running"`
	SessionID string   `json:"session_id"`
	Mode      string   `json:"mode"`
	Emitted   uint64   `json:"emitted"`
	Failed    uint64   `json:"failed"`
	DriftM    float64  `json:"drift_m"`
	Providers []string `json:"providers"`
	Line      string   `json:"line"`
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	body := map[string]any{"coords": strings.Join(args, " "), "enhanced": startEnhanced}
	raw, err := call(ctx, http.MethodPost, "/api/mock/start", nil, body)
	if err != nil {
		return err
	}
	return printStatus(cmd, raw)
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	raw, err := call(ctx, http.MethodPost, "/api/mock/stop", nil, nil)
	if isAPIStatus(err, http.StatusConflict) {
		fmt.Fprintln(cmd.OutOrStdout(), "not simulating")
		return nil
	}
	if err != nil {
		return err
	}
	return printStatus(cmd, raw)
}

func runToggle(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	raw, err := call(ctx, http.MethodPost, "/api/mock/mode", nil, nil)
	if err != nil {
		return err
	}
	return printStatus(cmd, raw)
}

func runRetarget(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	raw, err := call(ctx, http.MethodPost, "/api/mock/target", nil, map[string]any{"coords": strings.Join(args, " ")})
	if err != nil {
		return err
	}
	return printStatus(cmd, raw)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	raw, err := call(ctx, http.MethodGet, "/api/status", nil, nil)
	if err != nil {
		return err
	}
	return printStatus(cmd, raw)
}

func runPermission(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	raw, err := call(ctx, http.MethodGet, "/api/permission", nil, nil)
	if err != nil {
		return err
	}
	if asJSON {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(raw)))
		return nil
	}
	var perm struct {
		Granted bool   `json:"granted"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal(raw, &perm); err != nil {
		return err
	}
	if perm.Granted {
		fmt.Fprintln(cmd.OutOrStdout(), "mock location permission granted")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "mock location permission missing")
	if perm.Hint != "" {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), perm.Hint)
	}
	return fmt.Errorf("permission missing")
}

func printStatus(cmd *cobra.Command, raw []byte) error {
	out := cmd.OutOrStdout()
	if asJSON {
		fmt.Fprintln(out, strings.TrimSpace(string(raw)))
		return nil
	}
	var st statusView
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Fprintln(out, st.Line)
	if !st.Running {
		fmt.Fprintf(out, "next mode: %s\n", st.Mode)
		return nil
	}
	fmt.Fprintf(out, "session:   %s\n", st.SessionID)
	fmt.Fprintf(out, "fixes:     %d sent, %d failed sets\n", st.Emitted, st.Failed)
	fmt.Fprintf(out, "drift:     %.1f m\n", st.DriftM)
	fmt.Fprintf(out, "providers: %s\n", strings.Join(st.Providers, ", "))
	return nil
}
