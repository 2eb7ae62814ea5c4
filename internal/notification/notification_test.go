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

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookURL = "https://hooks.slack.test/services/T000/B000/XXX"

func testAlert() Alert {
	return Alert{
		RunID:  "run-1",
		LockID: "1001",
		Code:   "LOCK_NOT_FOUND",
		Err:    errors.New("new lock with ID 1001 not found after 5 attempts"),
		Time:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSlackNotification(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var received map[string]interface{}
	httpmock.RegisterResponder(http.MethodPost, webhookURL, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &received); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	err := SlackNotification(context.Background(), webhookURL, testAlert())
	require.NoError(t, err)

	blocks, ok := received["blocks"].([]interface{})
	require.True(t, ok)
	require.Len(t, blocks, 4)

	raw, _ := json.Marshal(received)
	assert.Contains(t, string(raw), "LOCK_NOT_FOUND: new lock with ID 1001 not found after 5 attempts")
	assert.Contains(t, string(raw), "*Run:*\\nrun-1")
}

func TestSlackNotificationRejected(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, webhookURL,
		httpmock.NewStringResponder(http.StatusForbidden, "invalid_token"))

	err := SlackNotification(context.Background(), webhookURL, testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestNotifyErrorWithoutWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	NotifyError(context.Background(), "", testAlert())
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestNotifyErrorSwallowsDeliveryFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, webhookURL,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	NotifyError(context.Background(), webhookURL, testAlert())
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
