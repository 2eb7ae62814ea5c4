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
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/internal/request"
	"github.com/jerry-enebeli/lockverify/internal/wallet"
	"github.com/jerry-enebeli/lockverify/model"
)

var (
	tracer = otel.Tracer("Lock verification")
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.WithError(err).Error(msg)
	return err
}

// Verifier runs the token lock verification flow for one wallet: submit a
// lock, resync it, then wait until the backend reports it correctly.
//
// A Verifier holds the state of a single run and is not safe for concurrent use.
type Verifier struct {
	backend   Backend
	submitter Submitter

	target            model.Target
	tokenAddress      string
	withdrawalAddress string
	lockAmount        string
	resyncPolicy      model.RetryPolicy
	validatePolicy    model.RetryPolicy
	runTimeout        time.Duration
	runID             string

	lockID          model.LockID
	resyncAttempted bool
}

type Option func(*Verifier)

// WithLockID starts the verifier from an existing lock instead of submitting one.
func WithLockID(id model.LockID) Option {
	return func(v *Verifier) {
		v.lockID = id
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(v *Verifier) {
		v.runID = id
	}
}

// NewVerifier builds a verifier from configuration. The withdrawal address is
// derived from the configured private key.
//
// Parameters:
// - cnf *config.Configuration: Loaded and validated configuration.
// - b Backend: The backend the lock is resynced on and read from.
// - s Submitter: Performs approve and lock. May be nil when only resync or validate are run.
//
// Returns:
// - *Verifier: The verifier, ready to run.
// - error: A *config.ConfigurationError if the private key cannot be used.
func NewVerifier(cnf *config.Configuration, b Backend, s Submitter, opts ...Option) (*Verifier, error) {
	w, err := wallet.FromPrivateKey(cnf.PrivateKey)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "PRIVATE_KEY", Err: err}
	}

	v := &Verifier{
		backend:           b,
		submitter:         s,
		target:            cnf.Target(),
		tokenAddress:      cnf.TokenAddress,
		withdrawalAddress: w.Address(),
		lockAmount:        cnf.Expected.LockAmount,
		resyncPolicy:      cnf.ResyncPolicy(),
		validatePolicy:    cnf.ValidatePolicy(),
		runTimeout:        cnf.RunTimeout(),
		runID:             uuid.NewString(),
	}
	for _, opt := range opts {
		opt(v)
	}

	v.logger().Infof("Using withdrawal address: %s", v.withdrawalAddress)
	return v, nil
}

func (v *Verifier) RunID() string {
	return v.runID
}

func (v *Verifier) LockID() model.LockID {
	return v.lockID
}

func (v *Verifier) WithdrawalAddress() string {
	return v.withdrawalAddress
}

// Expected is what the backend must report for the submitted lock.
func (v *Verifier) Expected() model.ExpectedFields {
	return model.ExpectedFields{
		TokenAddress:      v.tokenAddress,
		WithdrawalAddress: v.withdrawalAddress,
		LockAmount:        v.lockAmount,
	}
}

func (v *Verifier) logger() *logrus.Entry {
	fields := logrus.Fields{"run_id": v.runID}
	if !v.lockID.IsZero() {
		fields["lock_id"] = v.lockID
	}
	return logrus.WithFields(fields)
}

func (v *Verifier) context(ctx context.Context) context.Context {
	return request.WithRequestID(ctx, v.runID)
}

// Prepare reads the wallet's current locks so that a broken backend fails the
// run before anything is submitted on chain.
func (v *Verifier) Prepare(ctx context.Context) error {
	ctx = v.context(ctx)
	resp, err := v.backend.GetLocks(ctx, v.withdrawalAddress, v.target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &BackendUnavailableError{Method: http.MethodGet, URL: resp.URL, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &BackendUnavailableError{Method: http.MethodGet, URL: resp.URL, StatusCode: resp.StatusCode, Body: resp.Body}
	}

	v.logger().WithField("locks", len(resp.Locks)).Info("Initial locks state retrieved")
	return nil
}

// Submit creates a new token lock on chain and remembers its id for the
// following steps. A new submit resets the resync state.
func (v *Verifier) Submit(ctx context.Context) (model.LockID, error) {
	if v.submitter == nil {
		return "", &config.ConfigurationError{Field: "submitter.command", Err: ErrMissingSubmitter}
	}

	id, err := v.submitter.ApproveAndLock(v.context(ctx), model.LockRequest{
		WithdrawalAddress: v.withdrawalAddress,
		TokenAddress:      v.tokenAddress,
	})
	if err != nil {
		return "", err
	}
	if id.IsZero() {
		return "", &SubmitError{Err: ErrEmptyLockID}
	}

	v.lockID = id
	v.resyncAttempted = false
	v.logger().Infof("New Lock ID: %s", id)
	return id, nil
}

// Resync triggers re-indexing of the current lock. It returns the number of
// attempts made.
func (v *Verifier) Resync(ctx context.Context) (int, error) {
	if v.lockID.IsZero() {
		return 0, ErrMissingLockID
	}
	v.resyncAttempted = true
	return ResyncLock(v.context(ctx), v.backend, v.target, v.lockID, v.resyncPolicy)
}

// Validate waits for the current lock to appear in the backend and checks its
// fields. It refuses to run before a resync was attempted for the lock.
func (v *Verifier) Validate(ctx context.Context) (model.LockRecord, int, error) {
	if v.lockID.IsZero() {
		return model.LockRecord{}, 0, ErrMissingLockID
	}
	if !v.resyncAttempted {
		return model.LockRecord{}, 0, ErrResyncNotAttempted
	}
	return PollLock(v.context(ctx), v.backend, v.withdrawalAddress, v.target, v.lockID, v.Expected(), v.validatePolicy)
}

// Run executes prepare, submit, resync and validate in order and stops at the
// first failure. Scenarios after a failure are reported as skipped.
func (v *Verifier) Run(ctx context.Context) *Report {
	if v.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.runTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "Verifying token lock", trace.WithAttributes(
		attribute.String("run.id", v.runID),
	))
	defer span.End()

	report := &Report{RunID: v.runID}
	steps := []struct {
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{name: ScenarioPrepare, run: func(ctx context.Context) (int, error) {
			return 1, v.Prepare(ctx)
		}},
		{name: ScenarioSubmit, run: func(ctx context.Context) (int, error) {
			_, err := v.Submit(ctx)
			return 1, err
		}},
		{name: ScenarioResync, run: v.Resync},
		{name: ScenarioValidate, run: func(ctx context.Context) (int, error) {
			_, attempts, err := v.Validate(ctx)
			return attempts, err
		}},
	}

	for _, step := range steps {
		if report.Err != nil {
			report.add(ScenarioResult{Name: step.name, Status: StatusSkipped})
			continue
		}

		stepCtx, stepSpan := tracer.Start(ctx, "Scenario "+step.name)
		start := time.Now()
		attempts, err := step.run(stepCtx)
		result := ScenarioResult{
			Name:     step.name,
			Status:   StatusPassed,
			Attempts: attempts,
			Duration: time.Since(start),
		}
		if err != nil {
			stepSpan.RecordError(err)
			result.Status = StatusFailed
			result.Err = err
			report.Err = err
		}
		stepSpan.End()

		report.add(result)
		v.logger().WithFields(logrus.Fields{
			"scenario": step.name,
			"status":   result.Status,
			"attempts": attempts,
			"duration": result.Duration,
		}).Info("Scenario finished")
	}

	report.LockID = v.lockID
	if report.Err != nil {
		span.RecordError(report.Err)
	}
	return report
}
