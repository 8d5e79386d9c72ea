// Copyright (c) 2026 John Earle
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

// Package mailbox provides the sources the poller reads alert emails from:
// a live IMAP folder and offline mbox or .eml files for replay.
package mailbox

import "context"

// Envelope is one raw message and the UID it is addressed by.
type Envelope struct {
	UID uint32
	Raw []byte
}

// Source yields unseen messages and marks them processed.
type Source interface {
	// FetchUnseen returns unseen messages in mailbox order without changing
	// their flags.
	FetchUnseen(ctx context.Context) ([]Envelope, error)
	// MarkSeen flags one message as processed.
	MarkSeen(ctx context.Context, uid uint32) error
	// Close releases the underlying connection or file.
	Close() error
}
