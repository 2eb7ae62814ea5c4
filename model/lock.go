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

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LockID identifies a single lock creation event. The backend and the on-chain
// submitter disagree on whether it is a number or a string, so it is always
// carried and compared in its decimal string form.
type LockID string

func (id LockID) String() string {
	return string(id)
}

// IsZero reports whether no id has been assigned.
func (id LockID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// UnmarshalJSON accepts both `"42"` and `42`.
func (id *LockID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LockID(s)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("lock id must be a string or a number: %w", err)
	}
	*id = LockID(n.String())
	return nil
}

// LockRequest is what the submitter needs to approve and lock tokens.
type LockRequest struct {
	WithdrawalAddress string `json:"withdrawalAddress"`
	TokenAddress      string `json:"tokenAddress"`
}

// LockEvent is the indexed on-chain lock event as reported by the backend.
type LockEvent struct {
	LockDepositID     LockID `json:"lockDepositId"`
	TokenAddress      string `json:"tokenAddress"`
	WithdrawalAddress string `json:"withdrawalAddress"`
	LockAmount        string `json:"lockAmount"`
	UnlockTime        string `json:"unlockTime,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
	TransactionHash   string `json:"transactionHash,omitempty"`
	Network           string `json:"network,omitempty"`
	ChainID           string `json:"chainId,omitempty"`
}

// LockRecord is one element of the backend's per-wallet lock collection.
type LockRecord struct {
	Event LockEvent `json:"event"`
}

// ExpectedFields are the values a converged LockRecord must report.
type ExpectedFields struct {
	TokenAddress      string `json:"token_address"`
	WithdrawalAddress string `json:"withdrawal_address"`
	LockAmount        string `json:"lock_amount"`
}

// Target pins the contract and chain a lock lives on.
type Target struct {
	ContractAddress string `json:"contract_address"`
	Network         string `json:"network"`
	ChainID         string `json:"chain_id"`
}

// RetryPolicy is a bounded, fixed-delay retry schedule.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
}

// Budget is the longest a policy can spend waiting between attempts.
func (p RetryPolicy) Budget() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Delay
}

// FindLock scans records for the one whose lockDepositId equals id.
func FindLock(records []LockRecord, id LockID) (LockRecord, bool) {
	for _, record := range records {
		if record.Event.LockDepositID.String() == id.String() {
			return record, true
		}
	}
	return LockRecord{}, false
}
