package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/STRATINT/echoloop/internal/scheduler"
)

// adminClient calls the admin API of a running server.
type adminClient struct {
	baseURL  string
	password string
	http     *http.Client
	token    string
}

func newAdminClient(opts *rootOptions) *adminClient {
	return &adminClient{
		baseURL:  strings.TrimRight(opts.server, "/"),
		password: opts.password,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *adminClient) login(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.password == "" {
		return fmt.Errorf("admin password required: pass --password or set ADMIN_PASSWORD")
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", map[string]string{"password": c.password}, &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.token = resp.Token
	return nil
}

// admin calls an authenticated endpoint.
func (c *adminClient) admin(ctx context.Context, method, path string, out any) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	return c.call(ctx, method, path, nil, out)
}

func (c *adminClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scheduler status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(opts)

			var status scheduler.Status
			if err := client.call(cmd.Context(), http.MethodGet, "/api/scheduler/status", nil, &status); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), status, func(w io.Writer) {
				writeStatus(w, status)
			})
		},
	}
}

func writeStatus(w io.Writer, s scheduler.Status) {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	fmt.Fprintf(w, "Scheduler: %s\n", state)
	fmt.Fprintf(w, "Watchlist: %d posts\n", s.WatchlistSize)

	names := make([]string, 0, len(s.Jobs))
	for name := range s.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		job := s.Jobs[name]
		line := fmt.Sprintf("  %-9s runs=%d", name, job.Runs)
		if job.Running {
			line += " (running)"
		}
		if !job.LastFinished.IsZero() {
			line += " last=" + job.LastFinished.Format(time.RFC3339)
		}
		if job.LastError != "" {
			line += " error=" + job.LastError
		}
		fmt.Fprintln(w, line)
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the recurring jobs on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleScheduler(cmd, opts, "/api/admin/scheduler/start")
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the recurring jobs on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleScheduler(cmd, opts, "/api/admin/scheduler/stop")
		},
	}
}

func toggleScheduler(cmd *cobra.Command, opts *rootOptions, path string) error {
	var resp struct {
		Running bool `json:"running"`
	}
	if err := newAdminClient(opts).admin(cmd.Context(), http.MethodPost, path, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scheduler running: %v\n", resp.Running)
	return nil
}

func newTrackMetricsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track-metrics",
		Short: "Process mature watchlist entries on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Processed int    `json:"processed"`
				Errors    string `json:"errors"`
			}
			if err := newAdminClient(opts).admin(cmd.Context(), http.MethodPost, "/api/admin/track-metrics", &resp); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "processed %d watchlist entries\n", resp.Processed)
			if resp.Errors != "" {
				return fmt.Errorf("some entries failed: %s", resp.Errors)
			}
			return nil
		},
	}
}
