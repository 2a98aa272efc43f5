package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/api"
	"github.com/phrazzld/apply-orchestrator/internal/apiclient"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/poller"
	"github.com/spf13/cobra"
)

const defaultWatchInterval = poller.DefaultInterval

// errTaskFailed makes watch exit non-zero when the run failed.
var errTaskFailed = errors.New("task failed")

func newWatchCmd(c *cli) *cobra.Command {
	interval := defaultWatchInterval
	cmd := &cobra.Command{
		Use:   "watch TASK_ID",
		Short: "Follow a task until it finishes",
		Long:  "Follow a task until it finishes. Press Enter to ask the server for a fresh remote observation.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			_, err = watchTask(cmd.Context(), client, args[0], interval, refreshOnEnter(c.in), c.out, c.logger)
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", interval, "poll interval")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	var refetch, asJSON bool
	cmd := &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show the current status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			var task *api.TaskResponse
			if refetch {
				task, err = client.Refetch(cmd.Context(), args[0])
			} else {
				task, err = client.GetTask(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(task)
			}
			printTask(c.out, task)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refetch, "refetch", false, "ask the server for a fresh remote observation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response")
	return cmd
}

// refreshOnEnter signals once per line read from in.
func refreshOnEnter(in io.Reader) <-chan struct{} {
	ch := make(chan struct{}, 1)
	if in == nil {
		return ch
	}
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

func isTerminalTask(t *api.TaskResponse) bool {
	return t != nil && domain.CanonicalStatus(t.Status).IsTerminal()
}

// watchTask polls taskID until its status is terminal or ctx ends, printing
// status changes and new log lines. Each signal on refresh triggers a
// server-side refetch. Transient fetch failures are reported and polling
// continues; authorization and not-found errors stop the watch.
func watchTask(ctx context.Context, client *apiclient.Client, taskID string, interval time.Duration, refresh <-chan struct{}, out io.Writer, log *slog.Logger) (*api.TaskResponse, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := poller.New(func(ctx context.Context) (*api.TaskResponse, error) {
		return client.GetTask(ctx, taskID)
	}, isTerminalTask, interval,
		poller.WithManualFetch(func(ctx context.Context) (*api.TaskResponse, error) {
			return client.Refetch(ctx, taskID)
		}),
		poller.WithLogger[*api.TaskResponse](log))

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				p.Refetch()
			}
		}
	}()

	var (
		lastStatus string
		logsSeen   int
		final      *api.TaskResponse
		fatal      error
	)
	for u := range p.Updates() {
		if u.Err != nil {
			var apiErr *apiclient.APIError
			if errors.As(u.Err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnauthorized) {
				fatal = u.Err
				cancel()
				continue
			}
			fmt.Fprintf(out, "warning: %v\n", u.Err)
			continue
		}

		task := u.Value
		if task.Status != lastStatus {
			fmt.Fprintf(out, "[%s] %s\n", u.At.Format("15:04:05"), task.Status)
			if lastStatus == "" && task.LiveViewURL != "" {
				fmt.Fprintf(out, "Live view: %s\n", task.LiveViewURL)
			}
			lastStatus = task.Status
		}
		if logsSeen > len(task.Logs) {
			logsSeen = 0
		}
		for _, line := range task.Logs[logsSeen:] {
			fmt.Fprintf(out, "  %s\n", line)
		}
		logsSeen = len(task.Logs)

		if isTerminalTask(task) {
			final = task
			cancel()
		}
	}
	<-done

	if fatal != nil {
		return nil, fatal
	}
	if final == nil {
		return nil, ctx.Err()
	}
	printOutcome(out, final)
	if final.Status == string(domain.StatusFailed) || final.Outcome == string(domain.OutcomeFailed) {
		return final, fmt.Errorf("%w: %s", errTaskFailed, taskID)
	}
	return final, nil
}

func printTask(out io.Writer, t *api.TaskResponse) {
	fmt.Fprintf(out, "Task:      %s\n", t.TaskID)
	fmt.Fprintf(out, "Status:    %s\n", t.Status)
	fmt.Fprintf(out, "Success:   %s\n", t.IsSuccess)
	if t.LiveViewURL != "" {
		fmt.Fprintf(out, "Live view: %s\n", t.LiveViewURL)
	}
	if len(t.StagedFiles) > 0 {
		fmt.Fprintf(out, "Files:     %s\n", strings.Join(t.StagedFiles, ", "))
	}
	if t.Error != nil {
		fmt.Fprintf(out, "Error:     %s\n", *t.Error)
	}
	for _, line := range t.Logs {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func printOutcome(out io.Writer, t *api.TaskResponse) {
	switch {
	case t.Error != nil:
		fmt.Fprintf(out, "Finished: %s (%s)\n", t.Status, *t.Error)
	case t.Outcome != "":
		fmt.Fprintf(out, "Finished: %s\n", t.Outcome)
	default:
		fmt.Fprintf(out, "Finished: %s\n", t.Status)
	}
}
