// Copyright 2010-2024 Google LLC
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

package lprelax

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// ErrBasisMismatch is returned when a basis does not fit the model dimensions.
var ErrBasisMismatch = errors.New("basis does not match the model")

// VarStatus is the status of a column or of a row slack in a basis.
type VarStatus int8

const (
	// Basic marks a column strictly between its bounds, or an inactive row.
	Basic VarStatus = iota
	// AtLower marks a column at its lower bound, or a row at its lower side.
	AtLower
	// AtUpper marks a column at its upper bound, or a row at its upper side.
	AtUpper
	// AtZero marks a nonbasic free column.
	AtZero
)

func (s VarStatus) String() string {
	switch s {
	case Basic:
		return "BASIC"
	case AtLower:
		return "AT_LOWER"
	case AtUpper:
		return "AT_UPPER"
	case AtZero:
		return "AT_ZERO"
	}
	return fmt.Sprintf("VarStatus(%d)", int8(s))
}

// Basis describes an extreme point of the relaxation by the status of every
// model column and every model row. Cut rows are not part of the basis.
type Basis struct {
	ColStatus []VarStatus
	RowStatus []VarStatus
}

// Clone returns a deep copy of the basis.
func (b *Basis) Clone() *Basis {
	if b == nil {
		return nil
	}
	return &Basis{
		ColStatus: append([]VarStatus(nil), b.ColStatus...),
		RowStatus: append([]VarStatus(nil), b.RowStatus...),
	}
}

// Fits reports whether the basis has the dimensions of `m`.
func (b *Basis) Fits(m *mipmodel.Model) bool {
	return b != nil && len(b.ColStatus) == m.NumCols() && len(b.RowStatus) == m.NumRows()
}

const (
	colStatusField protowire.Number = 1
	rowStatusField protowire.Number = 2
)

func appendPacked(buf []byte, num protowire.Number, st []VarStatus) []byte {
	if len(st) == 0 {
		return buf
	}
	var packed []byte
	for _, s := range st {
		packed = protowire.AppendVarint(packed, uint64(s))
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, packed)
}

// Marshal encodes the basis in protocol buffer wire format: field 1 holds the
// packed column statuses, field 2 the packed row statuses.
func (b *Basis) Marshal() []byte {
	var buf []byte
	buf = appendPacked(buf, colStatusField, b.ColStatus)
	buf = appendPacked(buf, rowStatusField, b.RowStatus)
	return buf
}

func parseStatus(v uint64) (VarStatus, error) {
	if v > uint64(AtZero) {
		return 0, fmt.Errorf("invalid basis status %d", v)
	}
	return VarStatus(v), nil
}

// UnmarshalBasis decodes a basis produced by Basis.Marshal. Unknown fields are
// skipped.
func UnmarshalBasis(data []byte) (*Basis, error) {
	b := &Basis{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("decoding basis: %w", protowire.ParseError(n))
		}
		data = data[n:]
		var dst *[]VarStatus
		switch num {
		case colStatusField:
			dst = &b.ColStatus
		case rowStatusField:
			dst = &b.RowStatus
		}
		switch {
		case dst != nil && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("decoding basis: %w", protowire.ParseError(n))
			}
			data = data[n:]
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return nil, fmt.Errorf("decoding basis: %w", protowire.ParseError(k))
				}
				packed = packed[k:]
				s, err := parseStatus(v)
				if err != nil {
					return nil, err
				}
				*dst = append(*dst, s)
			}
		case dst != nil && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("decoding basis: %w", protowire.ParseError(n))
			}
			data = data[n:]
			s, err := parseStatus(v)
			if err != nil {
				return nil, err
			}
			*dst = append(*dst, s)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("decoding basis: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return b, nil
}
