// Copyright 2024 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"errors"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ExternalMessage wraps body into an inbound external message to the
// contract at to. stateInit may be nil.
func ExternalMessage(to *address.Address, stateInit *tlb.StateInit, body *cell.Cell) (*cell.Cell, error) {
	if to == nil {
		return nil, errors.New("external message without destination")
	}
	if body == nil {
		body = cell.BeginCell().EndCell()
	}
	return tlb.ToCell(&tlb.ExternalMessage{
		DstAddr:   to,
		StateInit: stateInit,
		Body:      body,
	})
}
