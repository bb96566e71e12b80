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

package api_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"perun.network/perun-ton-backend/api"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	paytest "perun.network/perun-ton-backend/payment/test"
)

type fixture struct {
	env     *paytest.Env
	handler http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	env := paytest.NewEnv(t)
	srv := api.New(api.Config{
		Service: env.Service,
		Now:     func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return fixture{env: env, handler: srv.Handler()}
}

func (f fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// openChannel creates a channel over the API, opens it on the simulated
// chain and initializes it over the API.
func (f fixture) openChannel(t *testing.T, deposit int64) (string, *payment.Payer) {
	t.Helper()
	rec := f.post(t, "/create-channel", api.CreateChannelRequest{
		ClientAddress:   f.env.ClientAddress.String(),
		ClientPublicKey: hex.EncodeToString(f.env.ClientAccount.PublicKey()),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[api.ChannelResponse](t, rec)
	require.False(t, created.Initialized)
	require.Equal(t, "0", created.ClientSeqNo)
	require.Equal(t, hex.EncodeToString(f.env.ServiceAccount.PublicKey()), created.ServicePublicKey)

	id, err := ledger.ParseChannelID(created.ChannelID)
	require.NoError(t, err)
	payer, err := payment.NewPayer(f.env.ClientAccount, f.env.ClientAddress, f.env.ServiceAccount.PublicKey(),
		f.env.ServiceAddress, id, f.env.Chain, f.env.Chain,
		payment.PayerConfig{PollingInterval: paytest.PollingInterval, MaxPollingAttempts: 20})
	require.NoError(t, err)
	_, err = payer.Open(context.Background(), f.env.Chain, big.NewInt(deposit))
	require.NoError(t, err)

	rec = f.post(t, "/init-channel", api.InitChannelRequest{ChannelID: created.ChannelID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[api.SuccessResponse](t, rec).Success)
	return created.ChannelID, payer
}

func paid(t *testing.T, id string, p *payment.Payer, amount int64) api.PaidRequest {
	t.Helper()
	data, sig := paytest.Send(t, p, amount)
	return api.PaidRequest{ChannelID: id, Signature: sig, NewChannelState: string(data)}
}

func (f fixture) createChannel(t *testing.T) api.ChannelResponse {
	t.Helper()
	rec := f.post(t, "/create-channel", api.CreateChannelRequest{
		ClientAddress:   f.env.ClientAddress.String(),
		ClientPublicKey: hex.EncodeToString(f.env.ClientAccount.PublicKey()),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[api.ChannelResponse](t, rec)
}

func (f fixture) postForm(t *testing.T, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/create-post", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t)
	id, payer := f.openChannel(t, 2_000_000_000)

	views := paid(t, id, payer, 150_000)
	rec := f.post(t, "/request-content", api.RequestContentRequest{PaidRequest: views, PostCount: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	content := decode[api.RequestContentResponse](t, rec)
	require.NotNil(t, content.Posts)
	require.Nil(t, content.Next)

	rec = f.post(t, "/request-content", api.RequestContentRequest{PaidRequest: views, PostCount: 3})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	react := api.ReactRequest{PaidRequest: paid(t, id, payer, 1_000_000_000), PostID: "p1", ReactionType: "brilliant"}
	rec = f.post(t, "/react", react)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	post := paid(t, id, payer, 10_000_000)
	rec = f.postForm(t, map[string]string{
		"title":           "hello",
		"text":            "world",
		"channelId":       post.ChannelID,
		"signature":       post.Signature,
		"newChannelState": post.NewChannelState,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[api.PostInfo](t, rec)
	require.Equal(t, "hello", info.Title)
	require.NotEmpty(t, info.ID)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), info.CreatedAt)

	rec = f.post(t, "/close-channel", api.CloseChannelRequest{ChannelID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	offer := decode[api.CloseChannelResponse](t, rec)
	require.Equal(t, int64(1_010_150_000), offer.State.BalanceB.Int64())
	require.True(t, offer.State.Equal(payer.State()))

	rec = f.post(t, "/request-content", api.RequestContentRequest{PaidRequest: views, PostCount: 3})
	require.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, payer.Close(context.Background(), offer.State, offer.Signature))
	closed, ok := f.env.Chain.Closed(payer.Channel().Address())
	require.True(t, ok)
	require.True(t, closed.Equal(offer.State))
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	id, payer := f.openChannel(t, 1_000_000_000)
	created := f.createChannel(t)

	forged := paid(t, id, payer, 50_000)
	forged.Signature = strings.Repeat("00", 64)

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"bad json", "/init-channel", "not an object", http.StatusBadRequest},
		{"bad channel id", "/init-channel", api.InitChannelRequest{ChannelID: "xyz"}, http.StatusBadRequest},
		{"unknown channel", "/init-channel", api.InitChannelRequest{ChannelID: "ff"}, http.StatusNotFound},
		{"bad address", "/create-channel", api.CreateChannelRequest{ClientAddress: "nope", ClientPublicKey: "00"}, http.StatusBadRequest},
		{"forged signature", "/request-content", api.RequestContentRequest{PaidRequest: forged, PostCount: 1}, http.StatusUnauthorized},
		{"missing state", "/request-content", api.RequestContentRequest{PaidRequest: api.PaidRequest{ChannelID: id}}, http.StatusBadRequest},
		{"unknown reaction", "/react", api.ReactRequest{PaidRequest: forged, PostID: "p", ReactionType: "dislike"}, http.StatusBadRequest},
		{"not initialized", "/close-channel", api.CloseChannelRequest{ChannelID: created.ChannelID}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.post(t, tc.path, tc.body)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			require.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}

	rec := f.postForm(t, map[string]string{"text": "no title"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/init-channel", api.InitChannelRequest{ChannelID: "ff"})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `pton_http_requests_total{code="404",route="/init-channel"}`)
}
