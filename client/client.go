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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"perun.network/perun-ton-backend/wire"
)

const (
	TestnetURL = "https://testnet.toncenter.com/api/v2/jsonRPC"
	MainnetURL = "https://toncenter.com/api/v2/jsonRPC"

	DefaultRequestTimeout = 10 * time.Second
	apiKeyHeader          = "X-API-Key"
)

var (
	ErrRPC             = errors.New("rpc error")
	ErrUnexpectedReply = errors.New("unexpected rpc reply")
)

// Config configures a Client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a toncenter JSON-RPC endpoint. It only exposes the two
// calls the channel protocol needs: running get-methods and sending
// messages.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
	nextID atomic.Uint64
}

func NewClient(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = TestnetURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		url:    url,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcReply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		ID:      c.nextID.Add(1),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading reply: %w", method, err)
	}

	var reply rpcReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("%w: %s returned status %d", ErrUnexpectedReply, method, resp.StatusCode)
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s: %s (code %d)", ErrRPC, method, reply.Error, reply.Code)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnexpectedReply, method, err)
	}
	return nil
}

// RunGetMethod runs a get-method without arguments on addr.
func (c *Client) RunGetMethod(ctx context.Context, addr *address.Address, method string) (wire.GetMethodResult, error) {
	var res wire.GetMethodResult
	err := c.call(ctx, "runGetMethod", map[string]any{
		"address": addr.String(),
		"method":  method,
		"stack":   []any{},
	}, &res)
	return res, err
}

// SendBoc broadcasts a serialized external message.
func (c *Client) SendBoc(ctx context.Context, boc []byte) error {
	return c.call(ctx, "sendBoc", map[string]string{
		"boc": base64.StdEncoding.EncodeToString(boc),
	}, nil)
}

// GetBalance returns the balance of addr in nanotons.
func (c *Client) GetBalance(ctx context.Context, addr *address.Address) (*big.Int, error) {
	var res string
	if err := c.call(ctx, "getAddressBalance", map[string]string{"address": addr.String()}, &res); err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(res, 10)
	if !ok {
		return nil, fmt.Errorf("%w: balance %q", ErrUnexpectedReply, res)
	}
	return bal, nil
}
