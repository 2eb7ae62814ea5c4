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
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/lockverify/internal/retry"
	"github.com/jerry-enebeli/lockverify/internal/wallet"
	"github.com/jerry-enebeli/lockverify/model"
)

// CheckLock compares a found record with the expected values. Addresses are
// compared ignoring case, the amount must match exactly.
func CheckLock(lockID model.LockID, record model.LockRecord, expected model.ExpectedFields) error {
	var mismatches []Mismatch

	if !wallet.SameAddress(record.Event.TokenAddress, expected.TokenAddress) {
		mismatches = append(mismatches, Mismatch{Field: "tokenAddress", Expected: expected.TokenAddress, Actual: record.Event.TokenAddress})
	}
	if !wallet.SameAddress(record.Event.WithdrawalAddress, expected.WithdrawalAddress) {
		mismatches = append(mismatches, Mismatch{Field: "withdrawalAddress", Expected: expected.WithdrawalAddress, Actual: record.Event.WithdrawalAddress})
	}
	if record.Event.LockAmount != expected.LockAmount {
		mismatches = append(mismatches, Mismatch{Field: "lockAmount", Expected: expected.LockAmount, Actual: record.Event.LockAmount})
	}

	if len(mismatches) > 0 {
		return &FieldMismatchError{LockID: lockID, Mismatches: mismatches}
	}
	return nil
}

// PollLock fetches the wallet's locks until lockID shows up, then checks it
// against expected. Each attempt is a fresh request.
//
// A lock that is not there yet is retried under policy. Anything else ends the
// poll at once: a non-200 or unreadable response is a BackendUnavailableError,
// a found lock with wrong values is a FieldMismatchError.
func PollLock(ctx context.Context, b Backend, walletAddress string, target model.Target, lockID model.LockID,
	expected model.ExpectedFields, policy model.RetryPolicy) (model.LockRecord, int, error) {
	if lockID.IsZero() {
		return model.LockRecord{}, 0, ErrMissingLockID
	}

	ctx, span := tracer.Start(ctx, "Polling for lock", trace.WithAttributes(
		attribute.String("lock.id", lockID.String()),
		attribute.String("lock.wallet", walletAddress),
	))
	defer span.End()

	var found model.LockRecord

	attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		resp, err := b.GetLocks(ctx, walletAddress, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, &BackendUnavailableError{
				Method:     http.MethodGet,
				URL:        resp.URL,
				StatusCode: resp.StatusCode,
				Body:       resp.Body,
				Err:        err,
			}
		}
		if resp.StatusCode != http.StatusOK {
			return false, &BackendUnavailableError{
				Method:     http.MethodGet,
				URL:        resp.URL,
				StatusCode: resp.StatusCode,
				Body:       resp.Body,
			}
		}

		logrus.WithFields(logrus.Fields{
			"lock_id": lockID,
			"attempt": attempt,
			"locks":   len(resp.Locks),
		}).Infof("Looking for lock ID: %s", lockID)

		record, ok := model.FindLock(resp.Locks, lockID)
		if !ok {
			return false, nil
		}

		logrus.WithField("lock_id", lockID).Info("New lock found")
		if err := CheckLock(lockID, record, expected); err != nil {
			return false, err
		}
		found = record
		return true, nil
	}, func(attempt int, delay time.Duration) {
		logrus.WithFields(logrus.Fields{
			"lock_id": lockID,
			"attempt": attempt,
		}).Infof("New lock not found, retrying in %v", delay)
	})

	span.SetAttributes(attribute.Int("poll.attempts", attempts))

	if errors.Is(err, retry.ErrNotReady) {
		err = &LockNotFoundError{LockID: lockID, Attempts: attempts}
	}
	if err != nil {
		return model.LockRecord{}, attempts, logAndRecordError(span, "Lock validation failed", err)
	}
	return found, attempts, nil
}
