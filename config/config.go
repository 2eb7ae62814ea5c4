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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/jerry-enebeli/lockverify/internal/wallet"
	"github.com/jerry-enebeli/lockverify/model"
)

const (
	DEFAULT_NETWORK          = "ethereum"
	DEFAULT_CHAIN_ID         = "0xaa36a7"
	DEFAULT_CONTRACT_ADDRESS = "0x4f0fd563be89ec8c3e7d595bf3639128c0a7c33a"
	DEFAULT_LOCK_AMOUNT      = "1"
	DEFAULT_BACKEND_TIMEOUT  = 30
	DEFAULT_LOG_LEVEL        = "info"

	// runTimeoutSlack is added to the derived run timeout to cover request latency.
	runTimeoutSlack = 2 * time.Minute
)

var (
	DefaultResync   = RetryConfig{MaxAttempts: 3, DelayMs: ptr.Int(5000)}
	DefaultValidate = RetryConfig{MaxAttempts: 5, DelayMs: ptr.Int(10000)}
)

var ConfigStore atomic.Value

// ConfigurationError reports missing or invalid configuration. It is fatal and
// is raised before any network call.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type BackendConfig struct {
	BaseURL    string `json:"base_url" envconfig:"LOCKVERIFY_BACKEND_URL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"LOCKVERIFY_BACKEND_TIMEOUT"`
}

type RetryConfig struct {
	MaxAttempts int `json:"max_attempts" split_words:"true"`
	// DelayMs is nil when unset; an explicit 0 retries without waiting.
	DelayMs *int `json:"delay_ms" split_words:"true"`
}

type ExpectedConfig struct {
	LockAmount string `json:"lock_amount" envconfig:"LOCKVERIFY_EXPECTED_LOCK_AMOUNT"`
}

type SubmitterConfig struct {
	Command    string   `json:"command" envconfig:"LOCKVERIFY_SUBMITTER_COMMAND"`
	Args       []string `json:"args" envconfig:"LOCKVERIFY_SUBMITTER_ARGS"`
	TimeoutSec int      `json:"timeout_sec" envconfig:"LOCKVERIFY_SUBMITTER_TIMEOUT"`
}

type SlackConfig struct {
	WebhookUrl string `json:"webhook_url" envconfig:"LOCKVERIFY_SLACK_WEBHOOK_URL"`
}

type NotificationConfig struct {
	Slack SlackConfig `json:"slack"`
}

type Configuration struct {
	PrivateKey      string             `json:"-" envconfig:"PRIVATE_KEY"`
	TokenAddress    string             `json:"token_address" envconfig:"TOKEN_ADDRESS"`
	Network         string             `json:"network" envconfig:"LOCKVERIFY_NETWORK"`
	ChainID         string             `json:"chain_id" envconfig:"LOCKVERIFY_CHAIN_ID"`
	ContractAddress string             `json:"contract_address" envconfig:"LOCKVERIFY_CONTRACT_ADDRESS"`
	Backend         BackendConfig      `json:"backend"`
	Resync          RetryConfig        `json:"resync"`
	Validate        RetryConfig        `json:"validate"`
	Expected        ExpectedConfig     `json:"expected"`
	Submitter       SubmitterConfig    `json:"submitter"`
	RunTimeoutSec   int                `json:"run_timeout_sec" envconfig:"LOCKVERIFY_RUN_TIMEOUT"`
	LogLevel        string             `json:"log_level" envconfig:"LOCKVERIFY_LOG_LEVEL"`
	EnableTelemetry bool               `json:"enable_telemetry" envconfig:"LOCKVERIFY_ENABLE_TELEMETRY"`
	Notification    NotificationConfig `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return &ConfigurationError{Field: file, Err: err}
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("lockverify", &cnf)
	if err != nil {
		return &ConfigurationError{Err: err}
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, &ConfigurationError{Err: errors.New("config not loaded. Create lockverify.json or set LOCKVERIFY_* env variables")}
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	cnf.PrivateKey = strings.TrimSpace(cnf.PrivateKey)
	cnf.TokenAddress = strings.TrimSpace(cnf.TokenAddress)
	cnf.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Backend.BaseURL), "/")

	if cnf.PrivateKey == "" {
		log.Println("Error: PRIVATE_KEY is not defined. It's a required field.")
		return &ConfigurationError{Field: "PRIVATE_KEY", Err: errors.New("is not defined")}
	}
	if _, err := wallet.FromPrivateKey(cnf.PrivateKey); err != nil {
		return &ConfigurationError{Field: "PRIVATE_KEY", Err: err}
	}

	if cnf.Network == "" {
		cnf.Network = DEFAULT_NETWORK
	}
	if cnf.ChainID == "" {
		cnf.ChainID = DEFAULT_CHAIN_ID
	}
	if cnf.ContractAddress == "" {
		cnf.ContractAddress = DEFAULT_CONTRACT_ADDRESS
	}
	if cnf.Expected.LockAmount == "" {
		cnf.Expected.LockAmount = DEFAULT_LOCK_AMOUNT
	}
	if cnf.Backend.TimeoutSec <= 0 {
		cnf.Backend.TimeoutSec = DEFAULT_BACKEND_TIMEOUT
	}
	if cnf.Resync.MaxAttempts == 0 {
		cnf.Resync.MaxAttempts = DefaultResync.MaxAttempts
	}
	if cnf.Resync.DelayMs == nil {
		cnf.Resync.DelayMs = ptr.Int(*DefaultResync.DelayMs)
	}
	if cnf.Validate.MaxAttempts == 0 {
		cnf.Validate.MaxAttempts = DefaultValidate.MaxAttempts
	}
	if cnf.Validate.DelayMs == nil {
		cnf.Validate.DelayMs = ptr.Int(*DefaultValidate.DelayMs)
	}
	if cnf.LogLevel == "" {
		cnf.LogLevel = DEFAULT_LOG_LEVEL
	}

	err := validation.ValidateStruct(cnf,
		validation.Field(&cnf.TokenAddress, validation.Required, model.IsAddress),
		validation.Field(&cnf.LogLevel, validation.By(func(value interface{}) error {
			_, err := logrus.ParseLevel(cnf.LogLevel)
			return err
		})),
		validation.Field(&cnf.RunTimeoutSec, validation.Min(0)),
	)
	if err != nil {
		return &ConfigurationError{Err: err}
	}

	err = validation.ValidateStruct(&cnf.Backend,
		validation.Field(&cnf.Backend.BaseURL, validation.Required, is.RequestURL),
	)
	if err != nil {
		return &ConfigurationError{Field: "backend", Err: err}
	}

	err = validation.ValidateStruct(&cnf.Notification.Slack,
		validation.Field(&cnf.Notification.Slack.WebhookUrl, is.RequestURL),
	)
	if err != nil {
		return &ConfigurationError{Field: "notification", Err: err}
	}

	err = validation.ValidateStruct(&cnf.Expected,
		validation.Field(&cnf.Expected.LockAmount, validation.Required, model.IsDecimal),
	)
	if err != nil {
		return &ConfigurationError{Field: "expected", Err: err}
	}

	if err := cnf.Target().Validate(); err != nil {
		return &ConfigurationError{Field: "target", Err: err}
	}
	if err := cnf.ResyncPolicy().Validate(); err != nil {
		return &ConfigurationError{Field: "resync", Err: err}
	}
	if err := cnf.ValidatePolicy().Validate(); err != nil {
		return &ConfigurationError{Field: "validate", Err: err}
	}

	return nil
}

// Target is the contract and chain every lock is checked against.
func (cnf *Configuration) Target() model.Target {
	return model.Target{
		ContractAddress: cnf.ContractAddress,
		Network:         cnf.Network,
		ChainID:         cnf.ChainID,
	}
}

func (cnf *Configuration) ResyncPolicy() model.RetryPolicy {
	return cnf.Resync.Policy()
}

func (cnf *Configuration) ValidatePolicy() model.RetryPolicy {
	return cnf.Validate.Policy()
}

func (r RetryConfig) Policy() model.RetryPolicy {
	var delayMs int
	if r.DelayMs != nil {
		delayMs = *r.DelayMs
	}
	return model.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Delay:       time.Duration(delayMs) * time.Millisecond,
	}
}

func (cnf *Configuration) BackendTimeout() time.Duration {
	return time.Duration(cnf.Backend.TimeoutSec) * time.Second
}

func (cnf *Configuration) SubmitterTimeout() time.Duration {
	return time.Duration(cnf.Submitter.TimeoutSec) * time.Second
}

// RunTimeout bounds a whole run. When unset it is derived from both retry
// policies so that neither loop can be cut short by the run deadline.
func (cnf *Configuration) RunTimeout() time.Duration {
	if cnf.RunTimeoutSec > 0 {
		return time.Duration(cnf.RunTimeoutSec) * time.Second
	}
	resync := cnf.ResyncPolicy()
	validate := cnf.ValidatePolicy()
	requests := time.Duration(resync.MaxAttempts+validate.MaxAttempts+1) * cnf.BackendTimeout()
	return resync.Budget() + validate.Budget() + requests + runTimeoutSlack
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
