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
	"context"
	"fmt"
	"sync"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wire"
)

// RPC is the chain node the ContractBackend talks to.
type RPC interface {
	RunGetMethod(ctx context.Context, addr *address.Address, method string) (wire.GetMethodResult, error)
	SendBoc(ctx context.Context, boc []byte) error
}

// ContractBackend reads channel contracts and submits external messages to
// them. Sends are serialized.
type ContractBackend struct {
	rpc     RPC
	cbMutex sync.Mutex
	log     log.Embedding
}

var (
	_ channel.ChainReader = (*ContractBackend)(nil)
	_ channel.Sender      = (*ContractBackend)(nil)
)

func NewContractBackend(rpc RPC) *ContractBackend {
	return &ContractBackend{
		rpc: rpc,
		log: log.MakeEmbedding(log.WithField("component", "contract-backend")),
	}
}

func (cb *ContractBackend) RunGetMethod(ctx context.Context, addr *address.Address, method string) (wire.GetMethodResult, error) {
	res, err := cb.rpc.RunGetMethod(ctx, addr, method)
	if err != nil {
		return wire.GetMethodResult{}, fmt.Errorf("%s on %s: %w", method, addr, err)
	}
	return res, nil
}

func (cb *ContractBackend) SendExternal(ctx context.Context, to *address.Address, stateInit *tlb.StateInit, body *cell.Cell) error {
	msg, err := ExternalMessage(to, stateInit, body)
	if err != nil {
		return err
	}

	cb.cbMutex.Lock()
	defer cb.cbMutex.Unlock()
	cb.log.Log().Debugf("Sending external message %x to %s", msg.Hash(), to)
	if err := cb.rpc.SendBoc(ctx, msg.ToBOC()); err != nil {
		return fmt.Errorf("sending external message: %w", err)
	}
	return nil
}
