// Copyright 2024 - See NOTICE file for copyright holders.
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

// Package channel contains all relevant components to open, use and conclude two-party payment channels on the TON blockchain.
// A Channel is one party's view of a channel contract: it derives the contract address, signs and verifies off-chain states and builds the on-chain messages.
// The Funder waits for opened channels, the Adjudicator submits close and dispute messages and the AdjEventSub reports status changes of the contract.
package channel
