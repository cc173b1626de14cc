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
	"encoding/hex"
	"fmt"

	"github.com/pingcap/errors"
)

// NamespaceID identifies a namespace for its whole life.
type NamespaceID uint64

// Height is the chain height used to bound namespace lifetimes.
type Height uint64

// Lifetime is the half-open height interval [Start, End) during which a root is active.
type Lifetime struct {
	Start Height `json:"start"`
	End   Height `json:"end"`
}

// NewLifetime creates a lifetime covering [start, end).
func NewLifetime(start, end Height) Lifetime {
	return Lifetime{Start: start, End: end}
}

// IsActiveAt returns true when height falls inside the lifetime.
func (l Lifetime) IsActiveAt(height Height) bool {
	return l.Start <= height && height < l.End
}

// IsExpiredAt returns true when the lifetime ended at or before height.
func (l Lifetime) IsExpiredAt(height Height) bool {
	return l.End <= height
}

func (l Lifetime) String() string {
	return fmt.Sprintf("[%d, %d)", l.Start, l.End)
}

// OwnerSize is the size of an owner public key.
const OwnerSize = 32

// Owner is the public key that owns a root namespace.
type Owner [OwnerSize]byte

// OwnerFromBytes copies b into an Owner. b must be OwnerSize long.
func OwnerFromBytes(b []byte) (Owner, error) {
	var owner Owner
	if len(b) != OwnerSize {
		return owner, errors.Errorf("invalid owner size %d, expected %d", len(b), OwnerSize)
	}
	copy(owner[:], b)
	return owner, nil
}

func (o Owner) String() string {
	return hex.EncodeToString(o[:])
}
