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

package mimedecode

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements end a line of visible text.
var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Tr: true, atom.Li: true,
	atom.Table: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Hr: true,
}

// cellElements are separated from their neighbours on the same row.
var cellElements = map[atom.Atom]bool{atom.Td: true, atom.Th: true}

// HTMLToText returns the visible text of an HTML document. Entities are
// unescaped, script and style contents are dropped, block elements become
// line breaks and table cells end with a tab.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	hidden := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF, or garbage the tokenizer cannot continue past
			return strings.TrimSpace(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Script || tok.DataAtom == atom.Style {
				if tt == html.StartTagToken {
					hidden++
				}
				continue
			}
			if blockElements[tok.DataAtom] {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			tok := z.Token()
			if (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) && hidden > 0 {
				hidden--
				continue
			}
			if blockElements[tok.DataAtom] {
				b.WriteByte('\n')
			}
			if cellElements[tok.DataAtom] {
				b.WriteByte('\t')
			}

		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
			}
		}
	}
}
