// Copyright 2024 PolyCrypt GmbH
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

package event

import (
	"time"

	pchannel "perun.network/go-perun/channel"
)

// Deadline returns the end of a close phase of durSec seconds that started
// at start.
func Deadline(start time.Time, durSec uint32) pchannel.Timeout {
	return &pchannel.TimeTimeout{Time: start.Add(Seconds(durSec))}
}

// Seconds converts a contract duration.
func Seconds(durSec uint32) time.Duration {
	return time.Duration(durSec) * time.Second
}
