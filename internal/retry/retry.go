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

package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jerry-enebeli/lockverify/model"
)

// ErrNotReady is returned by Do when every attempt reported "not ready".
var ErrNotReady = errors.New("operation not ready")

// Operation runs a single attempt. attempt starts at 1.
//
// Returning done=true ends the loop successfully. A non-nil error is a hard
// failure and is returned immediately without further attempts. done=false
// with a nil error means "not ready yet" and schedules another attempt.
type Operation func(ctx context.Context, attempt int) (done bool, err error)

// Notify is called after a "not ready" attempt, before waiting delay.
type Notify func(attempt int, delay time.Duration)

// Do runs op under policy: at most policy.MaxAttempts attempts with a fixed
// policy.Delay between them and no wait after the last one. It returns the
// number of attempts made.
//
// Waits are cancelled by ctx, in which case ctx.Err() is returned.
func Do(ctx context.Context, policy model.RetryPolicy, op Operation, notify Notify) (int, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(policy.MaxAttempts-1)),
		ctx,
	)

	attempts := 0
	operation := func() error {
		attempts++
		done, err := op(ctx, attempts)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return ErrNotReady
		}
		return nil
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(_ error, delay time.Duration) {
			notify(attempts, delay)
		}
	}

	err := backoff.RetryNotify(operation, b, onRetry)
	return attempts, err
}
