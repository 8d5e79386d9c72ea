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

// Package runner executes the UI probe registered for an alert action and
// turns its status artifact into a binary outcome.
package runner

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownAction is returned for an action with no registered script.
var ErrUnknownAction = errors.New("unknown action")

// Registry maps public action names to script paths relative to the
// workspace.
type Registry struct {
	scripts map[string]string
}

// NewRegistry copies scripts. Names are matched case-insensitively.
func NewRegistry(scripts map[string]string) *Registry {
	r := &Registry{scripts: make(map[string]string, len(scripts))}
	for name, path := range scripts {
		r.scripts[key(name)] = path
	}
	return r
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve returns the script path for an action.
func (r *Registry) Resolve(action string) (string, error) {
	if p, ok := r.scripts[key(action)]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w %q, available: %s", ErrUnknownAction, action, strings.Join(r.Names(), ", "))
}

// Names returns the registered actions, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scripts))
	for n := range r.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
