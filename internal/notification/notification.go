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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/lockverify/internal/request"
)

// Alert describes a failed verification run.
type Alert struct {
	RunID  string
	LockID string
	Code   string
	Err    error
	Time   time.Time
}

type text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

func field(name, value string) text {
	return text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", name, value)}
}

func slackPayload(alert Alert) ([]byte, error) {
	lockID := alert.LockID
	if lockID == "" {
		lockID = "none"
	}

	blocks := []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: "Lock verification failed 🐞", Emoji: true}},
		{Type: "section", Fields: []text{field("Error", fmt.Sprintf("%s: %v", alert.Code, alert.Err))}},
		{Type: "section", Fields: []text{field("Run", alert.RunID), field("Lock", lockID)}},
		{Type: "section", Fields: []text{field("Time", alert.Time.Format(time.RFC822))}},
	}
	return json.Marshal(map[string]interface{}{"blocks": blocks})
}

// SlackNotification posts alert to a Slack incoming webhook.
//
// Parameters:
// - ctx: Bounds the request.
// - webhookURL: The Slack incoming webhook.
// - alert: The failed run to report.
//
// Returns an error if the request fails or Slack does not answer 200.
func SlackNotification(ctx context.Context, webhookURL string, alert Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now()
	}

	payload, err := slackPayload(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := request.Call(http.DefaultClient, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d: %s", status, request.Snapshot(body))
	}
	return nil
}

// NotifyError logs alert and, when a webhook is configured, sends it to Slack.
// Delivery failures are logged and never fail the caller.
func NotifyError(ctx context.Context, webhookURL string, alert Alert) {
	logrus.WithFields(logrus.Fields{
		"run_id":  alert.RunID,
		"lock_id": alert.LockID,
		"code":    alert.Code,
	}).WithError(alert.Err).Error("Lock verification failed")

	if webhookURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := SlackNotification(ctx, webhookURL, alert); err != nil {
		logrus.WithError(err).Warn("Failed to send Slack notification")
	}
}
