// Copyright 2025 PolyCrypt GmbH
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

package api

import (
	"strconv"
	"time"

	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/wire"
)

type CreateChannelRequest struct {
	ClientAddress   string `json:"clientAddress"`
	ClientPublicKey string `json:"clientPublicKey"`
}

// ChannelResponse describes a channel as the service records it. Balances
// are decimal nanotons.
type ChannelResponse struct {
	ChannelID             string `json:"channelId"`
	ClientAddress         string `json:"clientAddress"`
	ClientPublicKey       string `json:"clientPublicKey"`
	ClientCurrentBalance  string `json:"clientCurrentBalance"`
	ClientSeqNo           string `json:"clientSeqNo"`
	ServiceAddress        string `json:"serviceAddress"`
	ServicePublicKey      string `json:"servicePublicKey"`
	ServiceCurrentBalance string `json:"serviceCurrentBalance"`
	ServiceSeqNo          string `json:"serviceSeqNo"`
	Initialized           bool   `json:"initialized"`
}

func newChannelResponse(row *ledger.Row) ChannelResponse {
	return ChannelResponse{
		ChannelID:             row.ChannelID,
		ClientAddress:         row.ClientAddress,
		ClientPublicKey:       row.ClientPublicKey,
		ClientCurrentBalance:  row.ClientCurrentBalance,
		ClientSeqNo:           strconv.FormatUint(row.ClientSeqNo, 10),
		ServiceAddress:        row.ServiceAddress,
		ServicePublicKey:      row.ServicePublicKey,
		ServiceCurrentBalance: row.ServiceCurrentBalance,
		ServiceSeqNo:          strconv.FormatUint(row.ServiceSeqNo, 10),
		Initialized:           row.Initialized,
	}
}

type InitChannelRequest struct {
	ChannelID string `json:"channelId"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// PaidRequest carries the state the client signed to pay for a request.
// NewChannelState is the JSON form of the state.
type PaidRequest struct {
	ChannelID       string `json:"channelId"`
	Signature       string `json:"signature"`
	NewChannelState string `json:"newChannelState"`
}

type RequestContentRequest struct {
	PaidRequest
	PostCount uint64 `json:"postCount"`
	Cursor    string `json:"cursor,omitempty"`
}

type PostInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	ImageURL  *string   `json:"imageUrl"`
	VideoURL  *string   `json:"videoUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

type RequestContentResponse struct {
	Posts []PostInfo `json:"posts"`
	Next  *string    `json:"next"`
}

type ReactRequest struct {
	PaidRequest
	PostID       string `json:"postId"`
	ReactionType string `json:"reactionType"`
}

type CloseChannelRequest struct {
	ChannelID string `json:"channelId"`
}

// CloseChannelResponse is the final state with the service's close
// signature in hex.
type CloseChannelResponse struct {
	State     wire.ChannelState `json:"state"`
	Signature string            `json:"signature"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
