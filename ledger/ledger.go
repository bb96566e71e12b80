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

package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"gorm.io/gorm"
	"perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wire"
)

var (
	ErrChannelNotFound       = errors.New("channel not found")
	ErrChannelExists         = errors.New("channel already exists")
	ErrChannelNotInitialized = errors.New("channel not initialized")
	ErrChannelClosed         = errors.New("channel closed")
	ErrStaleState            = errors.New("channel state changed concurrently")
	ErrConfigMismatch        = errors.New("on-chain channel does not match the ledger")
)

// Ledger stores the service's view of its channels and gates every state
// update. Updates of one channel are serialized.
type Ledger struct {
	db      *gorm.DB
	service *wallet.Account
	locksMu sync.Mutex
	locks   map[string]*channelLock
	metrics *metrics
	log     log.Embedding
}

// New returns a ledger on db. service is the account the service signs
// with; rows of other service keys are rejected.
func New(db *gorm.DB, service *wallet.Account) *Ledger {
	return &Ledger{
		db:      db,
		service: service,
		locks:   make(map[string]*channelLock),
		metrics: defaultMetrics(),
		log:     log.MakeEmbedding(log.WithField("component", "ledger")),
	}
}

// channelLock is dropped from the ledger once nobody holds or waits for it.
type channelLock struct {
	mu   pkgsync.Mutex
	refs int
}

func (l *Ledger) lock(ctx context.Context, channelID string) (func(), error) {
	l.locksMu.Lock()
	cl, ok := l.locks[channelID]
	if !ok {
		cl = new(channelLock)
		l.locks[channelID] = cl
	}
	cl.refs++
	l.locksMu.Unlock()

	if !cl.mu.TryLockCtx(ctx) {
		l.release(channelID, cl)
		return nil, ctx.Err()
	}
	return func() {
		cl.mu.Unlock()
		l.release(channelID, cl)
	}, nil
}

func (l *Ledger) release(channelID string, cl *channelLock) {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	if cl.refs--; cl.refs == 0 {
		delete(l.locks, channelID)
	}
}

// Channel returns the service's channel of row.
func (l *Ledger) Channel(row *Row) (*channel.Channel, error) {
	id, err := row.Identity()
	if err != nil {
		return nil, err
	}
	return channel.NewChannel(id, l.service, false)
}

// Create records a new, uninitialized channel.
func (l *Ledger) Create(ctx context.Context, id *channel.Identity) (*Row, error) {
	if !l.service.PublicKey().Equal(id.PublicKey(false)) {
		return nil, channel.ErrKeyMismatch
	}
	row := NewRow(id)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Row{}).Where("channel_id = ?", row.ChannelID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrChannelExists
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	l.metrics.channels.WithLabelValues("created").Inc()
	l.log.Log().Infof("Created channel %s with client %s", row.ChannelID, row.ClientAddress)
	return &row, nil
}

// Get returns the row of channelID.
func (l *Ledger) Get(ctx context.Context, channelID string) (*Row, error) {
	return get(l.db.WithContext(ctx), channelID)
}

func get(tx *gorm.DB, channelID string) (*Row, error) {
	var row Row
	err := tx.First(&row, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InitializedChannels returns the ids of all initialized channels, closed
// ones included.
func (l *Ledger) InitializedChannels(ctx context.Context) ([]string, error) {
	var ids []string
	err := l.db.WithContext(ctx).Model(&Row{}).
		Where("initialized = ?", true).
		Order("channel_id").
		Pluck("channel_id", &ids).Error
	return ids, err
}

// Initialize takes over the balances and seqnos of the opened contract.
// data must be OPEN and belong to the channel of the row. Initializing an
// initialized channel returns the row unchanged.
func (l *Ledger) Initialize(ctx context.Context, channelID string, data wire.ChannelData) (*Row, error) {
	if data.Status != wire.StatusOpen {
		return nil, fmt.Errorf("%w: status %v", channel.ErrChannelNotOpen, data.Status)
	}
	unlock, err := l.lock(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Row
	var initialized bool
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := get(tx, channelID)
		if err != nil {
			return err
		}
		if row.Closed {
			return ErrChannelClosed
		}
		if row.Initialized {
			out = row
			return nil
		}
		if err := matches(row, data); err != nil {
			return err
		}
		row.ClientInitialBalance = data.BalanceA.String()
		row.ServiceInitialBalance = data.BalanceB.String()
		row.setState(data.State())
		row.Initialized = true
		if err := tx.Save(row).Error; err != nil {
			return err
		}
		out, initialized = row, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if initialized {
		l.metrics.channels.WithLabelValues("initialized").Inc()
	}
	l.log.Log().Infof("Channel %s initialized with balances %s/%s", channelID, out.ClientCurrentBalance, out.ServiceCurrentBalance)
	return out, nil
}

func matches(row *Row, data wire.ChannelData) error {
	id, err := ParseChannelID(row.ChannelID)
	if err != nil {
		return err
	}
	if data.ChannelID == nil || data.ChannelID.Cmp(id) != 0 {
		return fmt.Errorf("%w: channel id", ErrConfigMismatch)
	}
	if hex.EncodeToString(data.PublicKeyA) != row.ClientPublicKey {
		return fmt.Errorf("%w: client key", ErrConfigMismatch)
	}
	if hex.EncodeToString(data.PublicKeyB) != row.ServicePublicKey {
		return fmt.Errorf("%w: service key", ErrConfigMismatch)
	}
	if data.BalanceA == nil || data.BalanceB == nil || data.BalanceA.Sign() < 0 || data.BalanceB.Sign() < 0 {
		return fmt.Errorf("%w: balances", ErrConfigMismatch)
	}
	return nil
}

// ValidateAndCommit validates the client-signed candidate state of
// channelID against the last committed one and commits it on success.
// candidateWire is the JSON form of the state, signatureHex the client's
// signature over it. On error the row is unchanged.
func (l *Ledger) ValidateAndCommit(ctx context.Context, channelID string, candidateWire []byte, signatureHex string,
	amount *big.Int, dir Direction) (*Row, error) {
	row, err := l.validateAndCommit(ctx, channelID, candidateWire, signatureHex, amount, dir)
	if err != nil {
		l.metrics.rejections.WithLabelValues(rejectionReason(err)).Inc()
		l.log.Log().Debugf("Rejected state of channel %s: %v", channelID, err)
		return nil, err
	}
	l.metrics.commits.WithLabelValues(dir.String()).Inc()
	return row, nil
}

func (l *Ledger) validateAndCommit(ctx context.Context, channelID string, candidateWire []byte, signatureHex string,
	amount *big.Int, dir Direction) (*Row, error) {
	candidate, err := wire.ParseChannelState(candidateWire)
	if err != nil {
		return nil, err
	}
	sig, err := wallet.DecodeSigHex(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidSignature, err)
	}

	unlock, err := l.lock(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Row
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := get(tx, channelID)
		if err != nil {
			return err
		}
		if row.Closed {
			return ErrChannelClosed
		}
		if !row.Initialized {
			return ErrChannelNotInitialized
		}
		ch, err := l.Channel(row)
		if err != nil {
			return err
		}
		current, err := row.State()
		if err != nil {
			return err
		}
		next, err := Validate(ch, current, candidate, sig, amount, dir)
		if err != nil {
			return err
		}

		res := tx.Model(&Row{}).
			Where("channel_id = ? AND client_seq_no = ? AND service_seq_no = ?", channelID, row.ClientSeqNo, row.ServiceSeqNo).
			Updates(map[string]any{
				"client_current_balance":  next.BalanceA.String(),
				"service_current_balance": next.BalanceB.String(),
				"client_seq_no":           next.SeqnoA,
				"service_seq_no":          next.SeqnoB,
				"client_signature":        hex.EncodeToString(sig),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrStaleState
		}
		row.setState(next)
		row.ClientSignature = hex.EncodeToString(sig)
		out = row
		return nil
	})
	return out, err
}

// MarkClosed marks the channel closed. Closed rows accept no more states.
func (l *Ledger) MarkClosed(ctx context.Context, channelID string) (*Row, error) {
	unlock, err := l.lock(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Row
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := get(tx, channelID)
		if err != nil {
			return err
		}
		if !row.Closed {
			if err := tx.Model(row).Update("closed", true).Error; err != nil {
				return err
			}
			row.Closed = true
			l.metrics.channels.WithLabelValues("closed").Inc()
		}
		out = row
		return nil
	})
	return out, err
}
