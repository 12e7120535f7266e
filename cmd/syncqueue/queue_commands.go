package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"syncqueue/internal/actionfile"
	"syncqueue/internal/dispatch"
	"syncqueue/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued actions",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueImportCommand(ctx))
	queueCmd.AddCommand(newQueueSkipCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending actions in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := ctx.openQueueAccess(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			items, err := session.Access.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if items == nil {
					items = []ipc.QueueItem{}
				}
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if !session.Access.Live() {
				fmt.Fprintln(out, "Daemon not running; showing stored actions")
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprint(out, renderQueueTable(items, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var method string
	var body string
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Queue a single mutation against the remote API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dispatch.Request{Method: method, Path: args[0]}
			if body = strings.TrimSpace(body); body != "" {
				req.Body = json.RawMessage(body)
			}
			payload, err := req.Encode()
			if err != nil {
				return err
			}
			return queuePayloads(cmd, ctx, []json.RawMessage{payload})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method (POST, PUT, PATCH, DELETE)")
	cmd.Flags().StringVarP(&body, "body", "d", "", "JSON request body")
	return cmd
}

func newQueueImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Queue every action listed in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := actionfile.Load(args[0])
			if err != nil {
				return err
			}
			return queuePayloads(cmd, ctx, payloads)
		},
	}
}

func queuePayloads(cmd *cobra.Command, ctx *commandContext, payloads []json.RawMessage) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.QueueAdd(payloads)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range resp.Items {
			fmt.Fprintf(out, "Queued %s %s (%s)\n", item.Method, item.Path, shortID(item.ID))
		}
		return nil
	})
}

func newQueueSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Abandon the action at the head of the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueSkip()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Skipped == nil {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintf(out, "Skipped %s %s (%s)\n", resp.Skipped.Method, resp.Skipped.Path, shortID(resp.Skipped.ID))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Re-check connectivity and restart the head dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry()
				if err != nil {
					return err
				}
				if resp.Online {
					fmt.Fprintln(cmd.OutOrStdout(), "Retry requested")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Server unreachable; replay resumes when it comes back")
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued action",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to discard queued actions without --yes")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d actions\n", resp.Removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm discarding all queued actions")
	return cmd
}
