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

// Package rules matches inbound alert emails against an ordered, immutable
// list of named alert rules. The first rule whose predicates all hold wins.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gsit/alertas/internal/normalize"
)

// Predicate is an optional substring test. The zero value is "not set" and
// is vacuously satisfied.
type Predicate struct {
	value string
	set   bool
}

// Contains returns a populated predicate requiring s to appear in the field.
func Contains(s string) Predicate {
	return Predicate{value: s, set: true}
}

// IsSet reports whether the predicate takes part in matching.
func (p Predicate) IsSet() bool { return p.set }

// Value returns the configured substring.
func (p Predicate) Value() string { return p.value }

func (p Predicate) String() string {
	if !p.set {
		return "<any>"
	}
	return fmt.Sprintf("contains %q", p.value)
}

// Rule is a named predicate set over sender, subject and body that selects
// an action when satisfied.
type Rule struct {
	Name            string
	SenderContains  Predicate
	SubjectContains Predicate
	BodyContains    Predicate
	Action          string
}

// compiledRule carries the predicate values in both normalized forms.
type compiledRule struct {
	rule    Rule
	sender  needle
	subject needle
	body    needle
}

type needle struct {
	set    bool
	strict string
	loose  string
}

func newNeedle(p Predicate) needle {
	if !p.IsSet() {
		return needle{}
	}
	return needle{
		set:    true,
		strict: normalize.Normalize(p.Value()),
		loose:  normalize.Loose(p.Value()),
	}
}

// holds reports whether the needle appears in the haystack. A punctuation
// difference alone never causes a miss: the loose forms are compared when
// the strict forms differ.
func (n needle) holds(h haystack) bool {
	if !n.set {
		return true
	}
	if strings.Contains(h.strict, n.strict) {
		return true
	}
	return n.loose != "" && strings.Contains(h.loose, n.loose)
}

type haystack struct {
	strict string
	loose  string
}

func newHaystack(s string) haystack {
	return haystack{strict: normalize.Normalize(s), loose: normalize.Loose(s)}
}

// Validation errors returned by NewMatcher.
var (
	ErrNoPredicate   = errors.New("rule has no predicate")
	ErrEmptyName     = errors.New("rule has no name")
	ErrEmptyAction   = errors.New("rule has no action")
	ErrDuplicateName = errors.New("duplicate rule name")
)

// Matcher evaluates rules in configuration order. It is immutable and safe
// for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher validates and compiles rules. A rule with no populated
// predicate would match every email and is rejected, as is a predicate that
// normalizes to nothing.
func NewMatcher(rules []Rule) (*Matcher, error) {
	seen := make(map[string]bool, len(rules))
	compiled := make([]compiledRule, 0, len(rules))

	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("rule %d: %w", i, ErrEmptyName)
		}
		if seen[name] {
			return nil, fmt.Errorf("rule %q: %w", name, ErrDuplicateName)
		}
		seen[name] = true

		if strings.TrimSpace(r.Action) == "" {
			return nil, fmt.Errorf("rule %q: %w", name, ErrEmptyAction)
		}

		c := compiledRule{
			rule:    r,
			sender:  newNeedle(r.SenderContains),
			subject: newNeedle(r.SubjectContains),
			body:    newNeedle(r.BodyContains),
		}
		if !c.sender.set && !c.subject.set && !c.body.set {
			return nil, fmt.Errorf("rule %q: %w", name, ErrNoPredicate)
		}
		for _, n := range []needle{c.sender, c.subject, c.body} {
			if n.set && n.strict == "" {
				return nil, fmt.Errorf("rule %q: empty predicate value: %w", name, ErrNoPredicate)
			}
		}

		compiled = append(compiled, c)
	}

	return &Matcher{rules: compiled}, nil
}

// Match returns the earliest rule whose populated predicates are all
// satisfied by the normalized sender, subject and body. The boolean is false
// when no rule applies, which is the expected outcome for unrelated mail.
func (m *Matcher) Match(sender, subject, body string) (Rule, bool) {
	s, subj, b := newHaystack(sender), newHaystack(subject), newHaystack(body)

	for _, c := range m.rules {
		if c.sender.holds(s) && c.subject.holds(subj) && c.body.holds(b) {
			return c.rule, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the configured rules in evaluation order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	for i, c := range m.rules {
		out[i] = c.rule
	}
	return out
}

// Len returns the number of configured rules.
func (m *Matcher) Len() int { return len(m.rules) }
