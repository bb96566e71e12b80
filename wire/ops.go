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

// Operation codes of the payment channel contract. Each is the crc32 of the
// TL-B constructor of the message and has to match the deployed code bit for bit.
const (
	OpTopUpBalance              uint32 = 0x67c7d281 // top_up_balance add_A:Coins add_B:Coins
	OpInitChannel               uint32 = 0x0e0620c2 // init_channel is_A:Bool signature:bits512 ...
	OpCooperativeClose          uint32 = 0x5577587e // cooperative_close sig_A:^bits512 sig_B:^bits512 ...
	OpCooperativeCommit         uint32 = 0x79a126ef // cooperative_commit sig_A:^bits512 sig_B:^bits512 ...
	OpStartUncooperativeClose   uint32 = 0x1f151acf // start_uncooperative_close signed_by_A:Bool signature:bits512 ...
	OpChallengeQuarantinedState uint32 = 0x088eaa32 // challenge_quarantined_state challenged_by_A:Bool signature:bits512 ...
	OpSettleConditionals        uint32 = 0x66f6f069 // settle_conditionals from_A:Bool signature:bits512 ...
	OpFinishUncooperativeClose  uint32 = 0x25432a91 // finish_uncooperative_close
	OpChannelClosed             uint32 = 0xdddc88ba // channel_closed channel_id:uint128
)

// Tags prefixing the signed part of a message.
const (
	TagInit                    uint32 = 0x696e6974
	TagCooperativeClose        uint32 = 0x436c6f73
	TagCooperativeCommit       uint32 = 0x43436d74
	TagStartUncooperativeClose uint32 = 0x556e436c
	TagChallengeState          uint32 = 0x43686751
	TagSettleConditionals      uint32 = 0x436c436e
	TagState                   uint32 = 0x43685374
)

// Field widths in bits.
const (
	OpBits        = 32
	ChannelIDBits = 128
	SeqnoBits     = 64
	PublicKeyBits = 256
	SignatureBits = 512

	PublicKeyLength = PublicKeyBits / 8
	SignatureLength = SignatureBits / 8

	// committed seqnos and durations in the contract storage are 32 bit wide.
	storageSeqnoBits = 32
	durationBits     = 32
	maxRefs          = 4
	maxCellBits      = 1023
	maxCoinsBytes    = 15
)
