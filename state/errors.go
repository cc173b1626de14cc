// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"fmt"

	"github.com/pingcap/errcode"
	"github.com/pingcap/errors"
)

var (
	// InvalidArgumentCode is returned when an operation names an id that is unknown,
	// not currently visible, or otherwise malformed.
	InvalidArgumentCode = errcode.InvalidInputCode.Child("input.namespace")

	// InvariantViolationCode is returned when an operation would break a structural
	// rule of the cache, e.g. removing the only version of a root that still has children.
	InvariantViolationCode = errcode.StateCode.Child("state.namespace")
)

var _ errcode.ErrorCode = (*InvalidArgumentErr)(nil)    // assert implements interface
var _ errcode.ErrorCode = (*InvariantViolationErr)(nil) // assert implements interface

// InvalidArgumentErr reports a reference to an unknown or invisible namespace.
type InvalidArgumentErr struct {
	ID     NamespaceID `json:"namespaceId"`
	Reason string      `json:"reason"`
}

func (e InvalidArgumentErr) Error() string {
	return fmt.Sprintf("%s (id %d)", e.Reason, e.ID)
}

// Code returns InvalidArgumentCode
func (e InvalidArgumentErr) Code() errcode.Code { return InvalidArgumentCode }

// InvariantViolationErr reports a mutation that was refused to keep the cache consistent.
type InvariantViolationErr struct {
	ID     NamespaceID `json:"namespaceId"`
	Reason string      `json:"reason"`
}

func (e InvariantViolationErr) Error() string {
	return fmt.Sprintf("%s (id %d)", e.Reason, e.ID)
}

// Code returns InvariantViolationCode
func (e InvariantViolationErr) Code() errcode.Code { return InvariantViolationCode }

// NewInvalidArgument creates an error carrying InvalidArgumentCode.
func NewInvalidArgument(id NamespaceID, format string, args ...interface{}) error {
	return errors.WithStack(InvalidArgumentErr{ID: id, Reason: fmt.Sprintf(format, args...)})
}

// NewInvariantViolation creates an error carrying InvariantViolationCode.
func NewInvariantViolation(id NamespaceID, format string, args ...interface{}) error {
	return errors.WithStack(InvariantViolationErr{ID: id, Reason: fmt.Sprintf(format, args...)})
}

func hasCode(err error, code errcode.Code) bool {
	if err == nil {
		return false
	}
	errCode, ok := errors.Cause(err).(errcode.ErrorCode)
	if !ok {
		return false
	}
	return errCode.Code().IsAncestor(code)
}

// IsInvalidArgument checks whether err was caused by a reference to an unknown
// or invisible namespace.
func IsInvalidArgument(err error) bool {
	return hasCode(err, InvalidArgumentCode)
}

// IsInvariantViolation checks whether err was caused by a refused structural change.
func IsInvariantViolation(err error) bool {
	return hasCode(err, InvariantViolationCode)
}
