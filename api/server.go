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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	"perun.network/perun-ton-backend/wire"
)

// DefaultMaxUploadBytes limits create-post forms.
const DefaultMaxUploadBytes = 10 << 20

var errBadRequest = errors.New("bad request")

type Config struct {
	Service        *payment.Service
	MaxUploadBytes int64
	// Now is used for post timestamps; it defaults to time.Now.
	Now func() time.Time
}

// Server is the HTTP surface of the payment service.
type Server struct {
	service        *payment.Service
	maxUploadBytes int64
	now            func() time.Time
	metrics        *metrics
	router         http.Handler
	log            log.Embedding
}

func New(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		service:        cfg.Service,
		maxUploadBytes: cfg.MaxUploadBytes,
		now:            cfg.Now,
		metrics:        defaultMetrics(),
		log:            log.MakeEmbedding(log.WithField("component", "api")),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Post("/create-channel", s.CreateChannel)
	r.Post("/init-channel", s.InitChannel)
	r.Post("/request-content", s.RequestContent)
	r.Post("/create-post", s.CreatePost)
	r.Post("/react", s.React)
	r.Post("/close-channel", s.CloseChannel)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if !s.decode(w, r, &req) {
		return
	}
	row, err := s.service.CreateChannel(r.Context(), req.ClientAddress, req.ClientPublicKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newChannelResponse(row))
}

func (s *Server) InitChannel(w http.ResponseWriter, r *http.Request) {
	var req InitChannelRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := parseChannelID(req.ChannelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.service.InitChannel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// RequestContent charges a view per requested post.
func (s *Server) RequestContent(w http.ResponseWriter, r *http.Request) {
	var req RequestContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.pay(r.Context(), req.PaidRequest, payment.ActionView, req.PostCount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RequestContentResponse{Posts: []PostInfo{}})
}

func (s *Server) React(w http.ResponseWriter, r *http.Request) {
	var req ReactRequest
	if !s.decode(w, r, &req) {
		return
	}
	action := payment.Action(req.ReactionType)
	if !payment.IsReaction(action) {
		s.writeError(w, fmt.Errorf("%w: reaction %q", payment.ErrUnknownAction, req.ReactionType))
		return
	}
	if req.PostID == "" {
		s.writeError(w, fmt.Errorf("%w: missing post id", errBadRequest))
		return
	}
	if err := s.pay(r.Context(), req.PaidRequest, action, 1); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// CreatePost charges the creation of a post. The request is a multipart
// form with title, text, the payment fields and an optional image.
func (s *Server) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	title, text := r.FormValue("title"), r.FormValue("text")
	if title == "" {
		s.writeError(w, fmt.Errorf("%w: missing title", errBadRequest))
		return
	}
	paid := PaidRequest{
		ChannelID:       r.FormValue("channelId"),
		Signature:       r.FormValue("signature"),
		NewChannelState: r.FormValue("newChannelState"),
	}
	if err := s.pay(r.Context(), paid, payment.ActionCreate, 1); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PostInfo{
		ID:        uuid.NewString(),
		Title:     title,
		Text:      text,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Server) CloseChannel(w http.ResponseWriter, r *http.Request) {
	var req CloseChannelRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := parseChannelID(req.ChannelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.service.CloseChannel(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CloseChannelResponse{State: offer.State, Signature: offer.Signature})
}

func (s *Server) pay(ctx context.Context, req PaidRequest, action payment.Action, units uint64) error {
	id, err := parseChannelID(req.ChannelID)
	if err != nil {
		return err
	}
	if req.NewChannelState == "" || req.Signature == "" {
		return fmt.Errorf("%w: missing state or signature", errBadRequest)
	}
	_, err = s.service.Pay(ctx, id, action, units, []byte(req.NewChannelState), req.Signature)
	return err
}

// parseChannelID normalizes the hex channel id of a request.
func parseChannelID(s string) (string, error) {
	id, err := ledger.ParseChannelID(s)
	if err != nil {
		return "", fmt.Errorf("%w: channel id: %v", errBadRequest, err)
	}
	return ledger.ChannelIDString(id), nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, payment.ErrInvalidInput),
		errors.Is(err, payment.ErrUnknownAction), errors.Is(err, wire.ErrEncoding),
		errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, channel.ErrInvalidIdentity),
		errors.Is(err, channel.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, channel.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrStaleState), errors.Is(err, ledger.ErrChannelClosed),
		errors.Is(err, ledger.ErrChannelNotInitialized), errors.Is(err, ledger.ErrChannelExists),
		errors.Is(err, ledger.ErrConfigMismatch), errors.Is(err, channel.ErrChannelNotOpen):
		return http.StatusConflict
	case errors.Is(err, channel.ErrOpenTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Log().Errorf("Request failed: %v", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
