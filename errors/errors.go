// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type ErrorCode int

const (
	Internal ErrorCode = iota + 1000
	InvalidConfiguration
)

const (
	DocumentTypeInvalid ErrorCode = iota + 1200
	MustNotSpecifyKey
)

const (
	ClusterTimeout ErrorCode = iota + 1400
	ConnectionLost
	AQLCommunication
	QueryNotFound
)

// AQLError carries a numeric error code alongside the message. Codes travel
// over the wire in error response bodies and are re-raised with the same
// code on the receiving side.
type AQLError struct {
	Code ErrorCode
	Msg  string
}

func (e AQLError) Error() string {
	return e.Msg
}

func NewAQLError(code ErrorCode, msg string) AQLError {
	return AQLError{Code: code, Msg: msg}
}

func NewAQLErrorf(code ErrorCode, msgFormat string, args ...interface{}) AQLError {
	return AQLError{Code: code, Msg: fmt.Sprintf(msgFormat, args...)}
}

func NewInternalError(msg string) AQLError {
	return NewAQLError(Internal, msg)
}

func NewInvalidConfigurationError(msg string) AQLError {
	return NewAQLErrorf(InvalidConfiguration, "invalid configuration: %s", msg)
}

func IsAQLErrorWithCode(err error, code ErrorCode) bool {
	var aerr AQLError
	if pkgerrors.As(err, &aerr) {
		return aerr.Code == code
	}
	return false
}

// CodeOf extracts the error code, or Internal if err is not an AQLError.
func CodeOf(err error) ErrorCode {
	var aerr AQLError
	if pkgerrors.As(err, &aerr) {
		return aerr.Code
	}
	return Internal
}

func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

func New(msg string) error {
	return pkgerrors.New(msg)
}

func As(err error, target interface{}) bool {
	return pkgerrors.As(err, target)
}
