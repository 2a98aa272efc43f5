package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Stop a running application",
		Long:  "Stop a running application. Cancelling a task that already finished succeeds without effect.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			if _, err := client.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Cancelled task %s\n", args[0])
			return nil
		},
	}
}
