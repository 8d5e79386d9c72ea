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

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/emersion/go-mbox"
)

// FileSource serves messages loaded from disk. UIDs are 1-based positions.
// MarkSeen is recorded in memory so a second FetchUnseen skips consumed
// messages, mirroring a live folder.
type FileSource struct {
	mu       sync.Mutex
	messages []Envelope
	seen     map[uint32]bool
}

// OpenMbox loads every message of an mbox file.
func OpenMbox(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox %s: %w", path, err)
	}
	defer f.Close()

	return ReadMbox(f)
}

// ReadMbox loads every message from an mbox stream.
func ReadMbox(r io.Reader) (*FileSource, error) {
	src := newFileSource()
	mr := mbox.NewReader(r)

	for {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", len(src.messages)+1, err)
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", len(src.messages)+1, err)
		}
		src.add(raw)
	}

	return src, nil
}

// OpenEML loads one message per .eml file, in argument order.
func OpenEML(paths ...string) (*FileSource, error) {
	src := newFileSource()
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		src.add(raw)
	}
	return src, nil
}

func newFileSource() *FileSource {
	return &FileSource{seen: make(map[uint32]bool)}
}

func (s *FileSource) add(raw []byte) {
	s.messages = append(s.messages, Envelope{UID: uint32(len(s.messages) + 1), Raw: raw})
}

// Len returns the number of loaded messages.
func (s *FileSource) Len() int {
	return len(s.messages)
}

// FetchUnseen returns the messages not yet marked seen.
func (s *FileSource) FetchUnseen(ctx context.Context) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Envelope
	for _, m := range s.messages {
		if !s.seen[m.UID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkSeen records uid as consumed.
func (s *FileSource) MarkSeen(ctx context.Context, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uid == 0 || int(uid) > len(s.messages) {
		return fmt.Errorf("mark seen: no message with uid %d", uid)
	}
	s.seen[uid] = true
	return nil
}

// Seen reports whether uid was marked seen.
func (s *FileSource) Seen(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[uid]
}

// Close is a no-op; files are read fully at open.
func (s *FileSource) Close() error { return nil }
