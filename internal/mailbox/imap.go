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
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sony/gobreaker"
)

// imapConn is the subset of *client.Client the source uses.
type imapConn interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

// Dialer opens an authenticated IMAP session.
type Dialer func(ctx context.Context) (imapConn, error)

// IMAPOptions configures an IMAP source.
type IMAPOptions struct {
	Addr         string
	Username     string
	Password     string
	Folder       string
	DialTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// IMAPSource reads a folder over IMAPS. The session is opened lazily and
// dropped after any protocol error so the next call reconnects.
type IMAPSource struct {
	opts    IMAPOptions
	dial    Dialer
	breaker *gobreaker.CircuitBreaker

	mu   sync.Mutex
	conn imapConn
}

// NewIMAPSource creates a source that dials opts.Addr with TLS.
func NewIMAPSource(opts IMAPOptions) *IMAPSource {
	return newIMAPSource(opts, tlsDialer(opts))
}

func newIMAPSource(opts IMAPOptions, dial Dialer) *IMAPSource {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}

	return &IMAPSource{
		opts: opts,
		dial: dial,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "imap",
			MaxRequests: 1,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
	}
}

func tlsDialer(opts IMAPOptions) Dialer {
	return func(ctx context.Context) (imapConn, error) {
		d := &net.Dialer{Timeout: opts.DialTimeout}
		c, err := client.DialWithDialerTLS(d, opts.Addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
		}
		c.Timeout = opts.DialTimeout

		if err := c.Login(opts.Username, opts.Password); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("login as %s: %w", opts.Username, err)
		}
		return c, nil
	}
}

// session returns the open connection, dialing with bounded retries behind
// the circuit breaker when there is none. Caller holds s.mu.
func (s *IMAPSource) session(ctx context.Context) (imapConn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.dialWithRetry(ctx)
	})
	if err != nil {
		return nil, err
	}

	conn := res.(imapConn)
	if _, err := conn.Select(s.opts.Folder, false); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("select %s: %w", s.opts.Folder, err)
	}

	s.conn = conn
	slog.Info("connected to mailbox", "addr", s.opts.Addr, "folder", s.opts.Folder)
	return conn, nil
}

func (s *IMAPSource) dialWithRetry(ctx context.Context) (imapConn, error) {
	backoff := s.opts.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := s.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		slog.Warn("imap connect failed",
			"attempt", attempt,
			"max_attempts", s.opts.MaxRetries,
			"error", err,
		)

		if attempt < s.opts.MaxRetries && backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("imap connect after %d attempts: %w", s.opts.MaxRetries, lastErr)
}

// drop discards a broken session. Caller holds s.mu.
func (s *IMAPSource) drop() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Logout()
	s.conn = nil
}

// FetchUnseen searches for messages without \Seen and fetches them with
// BODY.PEEK[] so fetching does not mark them read.
func (s *IMAPSource) FetchUnseen(ctx context.Context) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := conn.UidSearch(criteria)
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("uid search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqset, items, messages)
	}()

	byUID := make(map[uint32][]byte, len(uids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			slog.Warn("server returned no body", "uid", msg.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}
		byUID[msg.Uid] = raw
	}
	if err := <-done; err != nil {
		s.drop()
		return nil, fmt.Errorf("uid fetch: %w", err)
	}

	// Keep search order, which is mailbox order.
	out := make([]Envelope, 0, len(byUID))
	for _, uid := range uids {
		if raw, ok := byUID[uid]; ok {
			out = append(out, Envelope{UID: uid, Raw: raw})
		}
	}
	return out, nil
}

// MarkSeen adds \Seen to one message.
func (s *IMAPSource) MarkSeen(ctx context.Context, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.session(ctx)
	if err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := conn.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		s.drop()
		return fmt.Errorf("uid store %d: %w", uid, err)
	}
	return nil
}

// Close logs out.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Logout()
	s.conn = nil
	if err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Ping reports an error while the connection breaker is open.
func (s *IMAPSource) Ping(context.Context) error {
	if s.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("imap %s: %w", s.opts.Addr, gobreaker.ErrOpenState)
	}
	return nil
}
