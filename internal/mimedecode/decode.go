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

// Package mimedecode turns raw RFC 822 messages into the plain-text view the
// classifier works on: decoded subject, sender and a readable body.
//
// Nothing in this package fails on bad content. Undecodable encoded-words
// fall back to the raw header and undecodable body parts are skipped.
package mimedecode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/gsit/alertas/internal/models"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// DecodeSubject decodes RFC 2047 encoded-words in a header value. Any decode
// failure returns raw unchanged.
func DecodeSubject(raw string) string {
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Parse reads an RFC 822 message and builds the InboundMessage view of it.
// Only an unreadable header block is an error.
func Parse(raw []byte) (models.InboundMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return models.InboundMessage{}, fmt.Errorf("read message: %w", err)
	}

	subject := msg.Header.Get("Subject")
	return models.InboundMessage{
		Sender:         DecodeSubject(msg.Header.Get("From")),
		SubjectRaw:     subject,
		SubjectDecoded: DecodeSubject(subject),
		BodyPlain:      ExtractBody(msg),
	}, nil
}

// header is satisfied by both mail.Header and textproto.MIMEHeader.
type header interface {
	Get(key string) string
}

// ExtractBody returns the readable body of msg. Multipart messages yield the
// first text/plain or text/html part (in declaration order, nested multiparts
// included) whose payload decodes; HTML is reduced to its visible text.
// A message with no decodable text yields "".
func ExtractBody(msg *mail.Message) string {
	if msg == nil || msg.Body == nil {
		return ""
	}

	ctype, params := mediaType(msg.Header)
	if strings.HasPrefix(ctype, "multipart/") {
		body, _ := firstTextPart(msg.Body, params["boundary"])
		return body
	}

	body, err := decodePayload(msg.Header, msg.Body, params["charset"])
	if err != nil {
		return ""
	}
	if ctype == "text/html" {
		return HTMLToText(body)
	}
	return body
}

// firstTextPart walks the parts of a multipart body and returns the first
// text part that decodes.
func firstTextPart(r io.Reader, boundary string) (string, bool) {
	if boundary == "" {
		return "", false
	}

	mr := multipart.NewReader(r, boundary)
	for {
		// NextRawPart leaves Content-Transfer-Encoding to us so every part
		// goes through the same decoding path.
		part, err := mr.NextRawPart()
		if err != nil {
			// io.EOF or a malformed boundary: nothing more to read either way
			return "", false
		}

		ctype, params := mediaType(part.Header)
		switch {
		case strings.HasPrefix(ctype, "multipart/"):
			if body, ok := firstTextPart(part, params["boundary"]); ok {
				return body, true
			}
		case ctype == "text/plain" || ctype == "text/html":
			if isAttachment(part.Header) {
				continue
			}
			body, err := decodePayload(part.Header, part, params["charset"])
			if err != nil {
				continue
			}
			if ctype == "text/html" {
				body = HTMLToText(body)
			}
			return body, true
		}
	}
}

// decodePayload undoes the transfer encoding and converts the charset to UTF-8.
func decodePayload(h header, r io.Reader, charset string) (string, error) {
	var reader io.Reader = r
	switch strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding"))) {
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		reader = quotedprintable.NewReader(r)
	default:
		// 7bit, 8bit, binary
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}

	text, err := toUTF8(raw, charset)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(text, ""), nil
}

func toUTF8(raw []byte, charset string) (string, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(raw), nil
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return "", fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		// Known to IANA but not implemented by x/text; keep the bytes.
		return string(raw), nil
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode charset %q: %w", charset, err)
	}
	return string(decoded), nil
}

// charsetReader lets mime.WordDecoder handle charsets beyond the UTF-8 and
// ISO-8859-1 it supports natively.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func mediaType(h header) (string, map[string]string) {
	ctype, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return "text/plain", map[string]string{}
	}
	return ctype, params
}

func isAttachment(h header) bool {
	disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	return err == nil && disp == "attachment"
}
