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

	"github.com/jerry-enebeli/lockverify/internal/backend"
	"github.com/jerry-enebeli/lockverify/internal/retry"
	"github.com/jerry-enebeli/lockverify/model"
)

// Backend is the part of the indexing backend the verification flow relies on.
type Backend interface {
	ResyncLock(ctx context.Context, target model.Target, lockID model.LockID) (backend.ResyncResponse, error)
	GetLocks(ctx context.Context, wallet string, target model.Target) (backend.LocksResponse, error)
}

// resynced reports whether a resync response is a confirmation: HTTP 200 and a
// data field that is exactly the boolean true.
func resynced(resp backend.ResyncResponse) bool {
	return resp.StatusCode == http.StatusOK && resp.Data
}

// ResyncLock asks the backend to re-index lockID until it confirms, retrying
// under policy. Every unconfirmed outcome is retried, including non-2xx
// responses and transport errors: the backend may simply not have seen the
// block yet. It returns the number of attempts made.
func ResyncLock(ctx context.Context, b Backend, target model.Target, lockID model.LockID, policy model.RetryPolicy) (int, error) {
	if lockID.IsZero() {
		return 0, ErrMissingLockID
	}

	ctx, span := tracer.Start(ctx, "Resyncing lock", trace.WithAttributes(
		attribute.String("lock.id", lockID.String()),
		attribute.String("lock.contract", target.ContractAddress),
	))
	defer span.End()

	var (
		last    backend.ResyncResponse
		lastErr error
	)

	attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		last, lastErr = b.ResyncLock(ctx, target, lockID)

		fields := logrus.Fields{
			"lock_id":     lockID,
			"attempt":     attempt,
			"status_code": last.StatusCode,
		}
		if lastErr != nil {
			logrus.WithFields(fields).WithError(lastErr).Warn("Resync request failed")
			return false, nil
		}

		logrus.WithFields(fields).Infof("Resync Response Body: %s", last.Body)
		return resynced(last), nil
	}, func(attempt int, delay time.Duration) {
		logrus.WithFields(logrus.Fields{
			"lock_id": lockID,
			"attempt": attempt,
		}).Infof("Resync failed, retrying in %v", delay)
	})

	span.SetAttributes(attribute.Int("resync.attempts", attempts))

	if errors.Is(err, retry.ErrNotReady) {
		err = &ResyncExhaustedError{
			LockID:     lockID,
			Attempts:   attempts,
			LastStatus: last.StatusCode,
			LastBody:   last.Body,
			LastErr:    lastErr,
		}
	}
	if err != nil {
		return attempts, logAndRecordError(span, "Resync did not complete", err)
	}

	logrus.WithFields(logrus.Fields{"lock_id": lockID, "attempts": attempts}).Info("Lock resynced")
	return attempts, nil
}
