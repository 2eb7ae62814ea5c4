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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/internal/trace"
)

// LockVerify represents the CLI application, encapsulating the root Cobra command.
type LockVerify struct {
	cmd *cobra.Command
	app *verifyInstance
}

// verifyInstance holds the configuration loaded for the running command.
type verifyInstance struct {
	cnf      *config.Configuration
	shutdown func(context.Context) error
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration before running any command. A missing or
// invalid configuration stops the command before any network call is made.
func preRun(app *verifyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			return err
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		level, err := logrus.ParseLevel(cnf.LogLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)

		if cnf.EnableTelemetry {
			shutdown, err := trace.SetupOTelSDK(cmd.Context(), "LOCKVERIFY")
			if err != nil {
				return fmt.Errorf("error setting up OTel SDK: %v", err)
			}
			app.shutdown = shutdown
		}

		app.cnf = cnf
		return nil
	}
}

// flush exports traces recorded by the command, whether it failed or not.
func (app *verifyInstance) flush() {
	if app.shutdown == nil {
		return
	}
	if err := app.shutdown(context.Background()); err != nil {
		logrus.WithError(err).Warn("Error during trace shutdown")
	}
}

// NewCLI creates the command-line interface with the verification commands
// and the local fake backend.
func NewCLI() *LockVerify {
	var configFile string
	app := &verifyInstance{}

	var rootCmd = &cobra.Command{
		Use:           "lockverify",
		Short:         "Verify token locks end to end against the indexing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./lockverify.json", "Configuration file for lockverify")

	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(runCommands(app))
	rootCmd.AddCommand(submitCommands(app))
	rootCmd.AddCommand(resyncCommands(app))
	rootCmd.AddCommand(validateCommands(app))
	rootCmd.AddCommand(configCommands(app))
	rootCmd.AddCommand(fakeBackendCommands())

	return &LockVerify{cmd: rootCmd, app: app}
}

// executeCLI runs the root command. Any failure exits with a non-zero status.
func (l LockVerify) executeCLI() {
	err := l.cmd.Execute()
	l.app.flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
