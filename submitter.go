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

package lockverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/model"
)

// Submitter performs the on-chain token approval and lock and returns the id
// of the lock it created.
type Submitter interface {
	ApproveAndLock(ctx context.Context, req model.LockRequest) (model.LockID, error)
}

// CommandSubmitter delegates approve and lock to an external program.
//
// The program receives the LockRequest as JSON on stdin and must print a
// single JSON object as the last line of stdout: {"lockId": ...} on success or
// {"error": "..."} on failure. It inherits the environment, PRIVATE_KEY included.
type CommandSubmitter struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type submitResult struct {
	LockID model.LockID `json:"lockId"`
	Error  string       `json:"error"`
}

func NewCommandSubmitter(cfg config.SubmitterConfig) *CommandSubmitter {
	return &CommandSubmitter{
		Command: cfg.Command,
		Args:    cfg.Args,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

func (s *CommandSubmitter) ApproveAndLock(ctx context.Context, req model.LockRequest) (model.LockID, error) {
	if s.Command == "" {
		return "", &config.ConfigurationError{Field: "submitter.command", Err: errors.New("is not defined")}
	}
	if err := req.Validate(); err != nil {
		return "", &SubmitError{Err: err}
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", &SubmitError{Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	logrus.WithFields(logrus.Fields{
		"command":            s.Command,
		"withdrawal_address": req.WithdrawalAddress,
		"token_address":      req.TokenAddress,
	}).Info("Approving and locking tokens")

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &SubmitError{Err: err}
	}

	result, err := parseSubmitOutput(stdout.Bytes())
	if err != nil {
		return "", &SubmitError{Err: err}
	}
	if result.Error != "" {
		return "", &SubmitError{Err: errors.New(result.Error)}
	}
	if result.LockID.IsZero() {
		return "", &SubmitError{Err: ErrEmptyLockID}
	}
	return result.LockID, nil
}

// parseSubmitOutput reads the last non-empty line of out, so scripts may log
// freely before printing the result.
func parseSubmitOutput(out []byte) (submitResult, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return submitResult{}, errors.New("submitter produced no output")
	}

	var result submitResult
	if err := json.Unmarshal([]byte(last), &result); err != nil {
		return submitResult{}, fmt.Errorf("unreadable submitter output %q: %w", last, err)
	}
	return result, nil
}
