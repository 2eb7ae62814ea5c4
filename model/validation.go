package model

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress checks for a 0x-prefixed 20 byte hex address. Checksums are not
// enforced since the backend lowercases addresses.
var IsAddress = validation.Match(addressPattern).Error("must be a 0x-prefixed 20 byte hex address")

// IsDecimal checks that a string amount parses as a decimal number.
var IsDecimal = validation.By(isDecimal)

func isDecimal(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return errors.New("must be a decimal amount")
	}
	return nil
}

func (r LockRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.WithdrawalAddress, validation.Required, IsAddress),
		validation.Field(&r.TokenAddress, validation.Required, IsAddress),
	)
}

func (e ExpectedFields) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.TokenAddress, validation.Required, IsAddress),
		validation.Field(&e.WithdrawalAddress, validation.Required, IsAddress),
		validation.Field(&e.LockAmount, validation.Required, IsDecimal),
	)
}

func (t Target) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ContractAddress, validation.Required, IsAddress),
		validation.Field(&t.Network, validation.Required),
		validation.Field(&t.ChainID, validation.Required),
	)
}

func (p RetryPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.Delay, validation.Min(0)),
	)
}
