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
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/sony/gobreaker"
)

// fakeConn is an in-memory IMAP folder.
type fakeConn struct {
	mu        sync.Mutex
	messages  map[uint32][]byte
	seen      map[uint32]bool
	selected  string
	searchErr error
	loggedOut bool
}

func newFakeConn(msgs map[uint32]string) *fakeConn {
	c := &fakeConn{messages: make(map[uint32][]byte), seen: make(map[uint32]bool)}
	for uid, raw := range msgs {
		c.messages[uid] = []byte(raw)
	}
	return c
}

func (c *fakeConn) Select(name string, _ bool) (*imap.MailboxStatus, error) {
	c.selected = name
	return &imap.MailboxStatus{Name: name}, nil
}

func (c *fakeConn) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	if len(criteria.WithoutFlags) != 1 || criteria.WithoutFlags[0] != imap.SeenFlag {
		return nil, errors.New("expected UNSEEN search")
	}
	var uids []uint32
	for uid := range c.messages {
		if !c.seen[uid] {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (c *fakeConn) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	peek := false
	for _, it := range items {
		if it == "BODY.PEEK[]" {
			peek = true
		}
	}
	if !peek {
		return errors.New("fetch must use BODY.PEEK[]")
	}

	c.mu.Lock()
	var uids []uint32
	for uid := range c.messages {
		if seqset.Contains(uid) {
			uids = append(uids, uid)
		}
	}
	c.mu.Unlock()

	// Servers may answer out of order.
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	for _, uid := range uids {
		ch <- &imap.Message{
			Uid: uid,
			Body: map[*imap.BodySectionName]imap.Literal{
				&imap.BodySectionName{}: bytes.NewBuffer(c.messages[uid]),
			},
		}
	}
	return nil
}

func (c *fakeConn) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, _ chan *imap.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item != imap.FormatFlagsOp(imap.AddFlags, true) {
		return errors.New("unexpected store item")
	}
	flags := value.([]interface{})
	if len(flags) != 1 || flags[0] != imap.SeenFlag {
		return errors.New("unexpected flags")
	}
	for uid := range c.messages {
		if seqset.Contains(uid) {
			c.seen[uid] = true
		}
	}
	return nil
}

func (c *fakeConn) Logout() error {
	c.loggedOut = true
	return nil
}

func staticDialer(conn *fakeConn, dials *int) Dialer {
	return func(context.Context) (imapConn, error) {
		*dials++
		return conn, nil
	}
}

// TestIMAPSource_FetchAndMark verifies unseen messages come back in UID
// order without being flagged, and MarkSeen removes them from the next poll.
func TestIMAPSource_FetchAndMark(t *testing.T) {
	conn := newFakeConn(map[uint32]string{
		12: "Subject: b\r\n\r\nsecond",
		10: "Subject: a\r\n\r\nfirst",
	})
	var dials int
	src := newIMAPSource(IMAPOptions{}, staticDialer(conn, &dials))
	ctx := context.Background()

	envs, err := src.FetchUnseen(ctx)
	if err != nil {
		t.Fatalf("FetchUnseen: %v", err)
	}
	if len(envs) != 2 || envs[0].UID != 10 || envs[1].UID != 12 {
		t.Fatalf("envelopes = %+v", envs)
	}
	if string(envs[0].Raw) != "Subject: a\r\n\r\nfirst" {
		t.Errorf("raw = %q", envs[0].Raw)
	}
	if conn.selected != "INBOX" {
		t.Errorf("selected = %q, want INBOX", conn.selected)
	}
	if len(conn.seen) != 0 {
		t.Error("fetch must not set \\Seen")
	}

	if err := src.MarkSeen(ctx, 10); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	envs, _ = src.FetchUnseen(ctx)
	if len(envs) != 1 || envs[0].UID != 12 {
		t.Errorf("after MarkSeen = %+v", envs)
	}
	if dials != 1 {
		t.Errorf("dials = %d, want session reuse", dials)
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !conn.loggedOut {
		t.Error("Close should log out")
	}
}

func TestIMAPSource_EmptyFolder(t *testing.T) {
	var dials int
	src := newIMAPSource(IMAPOptions{}, staticDialer(newFakeConn(nil), &dials))
	envs, err := src.FetchUnseen(context.Background())
	if err != nil || len(envs) != 0 {
		t.Errorf("FetchUnseen = %v, %v", envs, err)
	}
}

// TestIMAPSource_ReconnectAfterError verifies a protocol error drops the
// session and the next call dials again.
func TestIMAPSource_ReconnectAfterError(t *testing.T) {
	conn := newFakeConn(map[uint32]string{1: "x"})
	conn.searchErr = errors.New("connection reset")
	var dials int
	src := newIMAPSource(IMAPOptions{}, staticDialer(conn, &dials))
	ctx := context.Background()

	if _, err := src.FetchUnseen(ctx); err == nil {
		t.Fatal("expected search error")
	}
	conn.searchErr = nil
	if _, err := src.FetchUnseen(ctx); err != nil {
		t.Fatalf("second FetchUnseen: %v", err)
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2", dials)
	}
}

func TestIMAPSource_RetryThenSucceed(t *testing.T) {
	conn := newFakeConn(nil)
	attempts := 0
	dial := func(context.Context) (imapConn, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("i/o timeout")
		}
		return conn, nil
	}

	src := newIMAPSource(IMAPOptions{MaxRetries: 3}, dial)
	if _, err := src.FetchUnseen(context.Background()); err != nil {
		t.Fatalf("FetchUnseen: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if err := src.Ping(context.Background()); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Ping = %v, want open breaker", err)
	}
}

// TestIMAPSource_BreakerOpens verifies repeated connect failures trip the
// breaker so later polls fail fast without dialing.
func TestIMAPSource_BreakerOpens(t *testing.T) {
	attempts := 0
	dial := func(context.Context) (imapConn, error) {
		attempts++
		return nil, errors.New("connection refused")
	}
	src := newIMAPSource(IMAPOptions{MaxRetries: 1}, dial)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := src.FetchUnseen(ctx); err == nil {
			t.Fatal("expected connect error")
		}
	}
	_, err := src.FetchUnseen(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want open breaker", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
