// Copyright 2025 PolyCrypt GmbH
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

package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ErrUnknownResultTag is returned for stack entries the decoder does not know.
var ErrUnknownResultTag = errors.New("unknown result tag")

// GetMethodResult is the result object of a runGetMethod call.
type GetMethodResult struct {
	GasUsed  int64             `json:"gas_used"`
	Stack    []json.RawMessage `json:"stack"`
	ExitCode int               `json:"exit_code"`
}

// ParseStack decodes a get-method result stack into *big.Int, *cell.Cell and
// []any values. A stack with exactly one entry is returned unwrapped.
func ParseStack(entries []json.RawMessage) (any, error) {
	values := make([]any, 0, len(entries))
	for i, e := range entries {
		v, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("stack entry %d: %w", i, err)
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

func parseEntry(raw json.RawMessage) (any, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("%w: expected [tag, value], got %d elements", ErrEncoding, len(pair))
	}
	var tag string
	if err := json.Unmarshal(pair[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	switch tag {
	case "num":
		var s string
		if err := json.Unmarshal(pair[1], &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return ParseHexInt(s)
	case "list", "tuple":
		return parseObject(pair[1])
	case "cell":
		var obj struct {
			Bytes string `json:"bytes"`
		}
		if err := json.Unmarshal(pair[1], &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return cellFromBase64(obj.Bytes)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResultTag, tag)
	}
}

// stackObject is the union of all typed objects nested in list and tuple entries.
type stackObject struct {
	Type     string            `json:"@type"`
	Elements []json.RawMessage `json:"elements"`
	Bytes    string            `json:"bytes"`
	Number   json.RawMessage   `json:"number"`
	Cell     json.RawMessage   `json:"cell"`
	Slice    json.RawMessage   `json:"slice"`
	Tuple    json.RawMessage   `json:"tuple"`
	List     json.RawMessage   `json:"list"`
}

func parseObject(raw json.RawMessage) (any, error) {
	var obj stackObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	switch obj.Type {
	case "tvm.list", "tvm.tuple":
		elems := make([]any, 0, len(obj.Elements))
		for _, e := range obj.Elements {
			v, err := parseObject(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return elems, nil
	case "tvm.cell", "tvm.slice":
		return cellFromBase64(obj.Bytes)
	case "tvm.stackEntryCell":
		return parseObject(obj.Cell)
	case "tvm.stackEntrySlice":
		return parseObject(obj.Slice)
	case "tvm.stackEntryTuple":
		return parseObject(obj.Tuple)
	case "tvm.stackEntryList":
		return parseObject(obj.List)
	case "tvm.stackEntryNumber":
		return parseObject(obj.Number)
	case "tvm.numberDecimal":
		var s string
		if err := json.Unmarshal(obj.Number, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid decimal %q", ErrEncoding, s)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResultTag, obj.Type)
	}
}

func cellFromBase64(s string) (*cell.Cell, error) {
	boc, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	c, err := cell.FromBOC(boc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return c, nil
}

// AsInt asserts that v is an integer.
func AsInt(v any) (*big.Int, error) {
	i, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: expected number, got %T", ErrEncoding, v)
	}
	return i, nil
}

// AsList asserts that v is a list of n elements.
func AsList(v any, n int) ([]any, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected list, got %T", ErrEncoding, v)
	}
	if len(l) != n {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrEncoding, n, len(l))
	}
	return l, nil
}

// AsCell asserts that v is a cell.
func AsCell(v any) (*cell.Cell, error) {
	c, ok := v.(*cell.Cell)
	if !ok {
		return nil, fmt.Errorf("%w: expected cell, got %T", ErrEncoding, v)
	}
	return c, nil
}
