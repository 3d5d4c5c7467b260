package types

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeSignerNotConnected       ErrorCode = "SIGNER_NOT_CONNECTED"
	ErrCodeProviderNotConnected     ErrorCode = "PROVIDER_NOT_CONNECTED"
	ErrCodeSubmitNotCalled          ErrorCode = "SUBMIT_NOT_CALLED"
	ErrCodeInvalidTxHash            ErrorCode = "INVALID_TX_HASH"
	ErrCodePayloadHandler           ErrorCode = "PAYLOAD_HANDLER"
	ErrCodeWaitTimeout              ErrorCode = "WAIT_TIMEOUT"
	ErrCodeRenVMTransactionReverted ErrorCode = "RENVM_TRANSACTION_REVERTED"
)

// ErrorWithCode is returned to callers for failures they may want to tell apart.
type ErrorWithCode struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewErrorWithCode(code ErrorCode, format string, args ...interface{}) *ErrorWithCode {
	return &ErrorWithCode{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func WrapErrorWithCode(code ErrorCode, err error, format string, args ...interface{}) *ErrorWithCode {
	return &ErrorWithCode{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *ErrorWithCode) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *ErrorWithCode) Unwrap() error {
	return e.Err
}

// IsErrorWithCode reports whether any error in err's chain is an ErrorWithCode with the given code.
func IsErrorWithCode(err error, code ErrorCode) bool {
	var withCode *ErrorWithCode
	if errors.As(err, &withCode) {
		return withCode.Code == code
	}

	return false
}
