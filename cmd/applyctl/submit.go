package main

import (
	"fmt"

	"github.com/phrazzld/apply-orchestrator/internal/api"
	"github.com/spf13/cobra"
)

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		req      api.SubmitApplicationRequest
		watch    bool
		interval = defaultWatchInterval
	)
	cmd := &cobra.Command{
		Use:   "submit --job JOB_ID",
		Short: "Start an automated application for a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Submitted task %s (%s)\n", resp.TaskID, resp.Status)
			if resp.LiveViewURL != "" {
				fmt.Fprintf(c.out, "Live view: %s\n", resp.LiveViewURL)
			}
			if !watch {
				return nil
			}
			_, err = watchTask(cmd.Context(), client, resp.TaskID, interval, refreshOnEnter(c.in), c.out, c.logger)
			return err
		},
	}
	cmd.Flags().StringVar(&req.JobID, "job", "", "job id to apply to")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "extra instructions for this application")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "notes to include with the application")
	cmd.Flags().BoolVar(&watch, "watch", false, "follow the task until it finishes")
	cmd.Flags().DurationVar(&interval, "interval", interval, "poll interval when watching")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
