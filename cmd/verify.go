/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands that drive a token lock through
submission, resync and validation against the indexing backend.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/lockverify"
	"github.com/jerry-enebeli/lockverify/internal/backend"
	"github.com/jerry-enebeli/lockverify/internal/notification"
	"github.com/jerry-enebeli/lockverify/model"
)

// newVerifier wires the configured backend and submitter into a verifier.
// The submitter is left out when no command is configured so that resync and
// validate work on their own.
func (app *verifyInstance) newVerifier(opts ...lockverify.Option) (*lockverify.Verifier, error) {
	b := backend.New(app.cnf.Backend.BaseURL, app.cnf.BackendTimeout())

	var s lockverify.Submitter
	if app.cnf.Submitter.Command != "" {
		s = lockverify.NewCommandSubmitter(app.cnf.Submitter)
	}
	return lockverify.NewVerifier(app.cnf, b, s, opts...)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func codedError(err error) error {
	return fmt.Errorf("%s: %w", lockverify.CodeOf(err), err)
}

// runCommands runs the whole flow and prints a report.
func runCommands(app *verifyInstance) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "submit a lock, resync it and validate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			v, err := app.newVerifier()
			if err != nil {
				return codedError(err)
			}

			report := v.Run(ctx)
			if err := printReport(cmd.OutOrStdout(), report, output); err != nil {
				return err
			}
			if !report.Passed() {
				notification.NotifyError(cmd.Context(), app.cnf.Notification.Slack.WebhookUrl, notification.Alert{
					RunID:  report.RunID,
					LockID: report.LockID.String(),
					Code:   string(lockverify.CodeOf(report.Err)),
					Err:    report.Err,
				})
				return codedError(report.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Report format: table or json")
	return cmd
}

// submitCommands only performs the on-chain approve and lock.
func submitCommands(app *verifyInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "approve and lock tokens and print the new lock id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			v, err := app.newVerifier()
			if err != nil {
				return codedError(err)
			}

			id, err := v.Submit(ctx)
			if err != nil {
				return codedError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "New Lock ID: %s\n", id)
			return nil
		},
	}
}

// resyncCommands resyncs an existing lock.
func resyncCommands(app *verifyInstance) *cobra.Command {
	var lockID string

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "ask the backend to re-index an existing lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			v, err := app.newVerifier(lockverify.WithLockID(model.LockID(lockID)))
			if err != nil {
				return codedError(err)
			}

			attempts, err := v.Resync(ctx)
			if err != nil {
				return codedError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lock %s resynced after %d attempt(s)\n", lockID, attempts)
			return nil
		},
	}

	cmd.Flags().StringVar(&lockID, "lock-id", "", "Id of the lock to resync")
	_ = cmd.MarkFlagRequired("lock-id")
	return cmd
}

// validateCommands resyncs an existing lock and waits for the backend to
// report it with the expected values. Validation never runs without a resync.
func validateCommands(app *verifyInstance) *cobra.Command {
	var lockID string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "resync an existing lock and check what the backend reports for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			v, err := app.newVerifier(lockverify.WithLockID(model.LockID(lockID)))
			if err != nil {
				return codedError(err)
			}

			if _, err := v.Resync(ctx); err != nil {
				return codedError(err)
			}
			record, attempts, err := v.Validate(ctx)
			if err != nil {
				return codedError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Lock %s validated after %d attempt(s)\n", lockID, attempts)
			return printLock(cmd.OutOrStdout(), record)
		},
	}

	cmd.Flags().StringVar(&lockID, "lock-id", "", "Id of the lock to validate")
	_ = cmd.MarkFlagRequired("lock-id")
	return cmd
}
