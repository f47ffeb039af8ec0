package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewRecomputeCmd создаёт команду постановки пересчёта.
func NewRecomputeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "recompute RESTAURANT_ID",
		Short: "Enqueue menu stats recompute for a restaurant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			restaurantID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || restaurantID < 1 {
				return fmt.Errorf("invalid restaurant id %q", args[0])
			}

			client := clientFn()
			out := outputFn()

			accepted, err := client.Recompute(cmd.Context(), restaurantID)
			if err != nil {
				return err
			}

			if !wait {
				out.Notice("Task queued: %s", accepted.TaskID)
				out.Print(
					[]string{"TASK_ID", "STATE"},
					[][]string{{accepted.TaskID, accepted.State}},
					accepted,
				)
				return nil
			}

			out.Notice("Task queued: %s, waiting...", accepted.TaskID)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := client.Wait(ctx, accepted.TaskID, interval)
			if err != nil {
				return err
			}

			printStatus(out, status)
			if status.State == "FAILURE" {
				return fmt.Errorf("task %s failed: %s", status.TaskID, status.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the task finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")

	return cmd
}

// NewStatusCmd создаёт команду просмотра статуса task.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show task state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printStatus(outputFn(), status)
			return nil
		},
	}
}

func printStatus(out *Output, s *TaskStatus) {
	detail := ""
	switch {
	case len(s.Result) > 0:
		detail = string(s.Result)
	case s.Error != "":
		detail = s.ErrorType + ": " + s.Error
	}

	out.Print(
		[]string{"TASK_ID", "STATE", "DETAIL"},
		[][]string{{s.TaskID, s.State, detail}},
		s,
	)
}
