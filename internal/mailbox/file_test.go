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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMbox = `From rpinheiro@viewnext.com Wed Jan  1 09:00:00 2025
From: rpinheiro@viewnext.com
Subject: [GSIT] Alerta Activa - ELS MEUS DOCUMENTS

ACCES_FRONTAL_EMD
Recepció: 01/01/2025 09:00:00

From newsletter@example.com Wed Jan  1 09:05:00 2025
From: newsletter@example.com
Subject: Weekly digest

>From the editors: nothing to see.
`

func TestReadMbox(t *testing.T) {
	src, err := ReadMbox(strings.NewReader(sampleMbox))
	if err != nil {
		t.Fatalf("ReadMbox: %v", err)
	}
	if src.Len() != 2 {
		t.Fatalf("Len = %d, want 2", src.Len())
	}

	envs, _ := src.FetchUnseen(context.Background())
	if envs[0].UID != 1 || envs[1].UID != 2 {
		t.Errorf("uids = %d, %d", envs[0].UID, envs[1].UID)
	}
	if !strings.Contains(string(envs[0].Raw), "Recepció: 01/01/2025 09:00:00") {
		t.Errorf("first message = %q", envs[0].Raw)
	}
	if !strings.Contains(string(envs[1].Raw), "From the editors") {
		t.Errorf("second message = %q", envs[1].Raw)
	}
}

func TestFileSource_MarkSeen(t *testing.T) {
	src, err := ReadMbox(strings.NewReader(sampleMbox))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := src.MarkSeen(ctx, 1); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if !src.Seen(1) || src.Seen(2) {
		t.Error("seen flags wrong")
	}
	envs, _ := src.FetchUnseen(ctx)
	if len(envs) != 1 || envs[0].UID != 2 {
		t.Errorf("unseen = %+v", envs)
	}
	if err := src.MarkSeen(ctx, 9); err == nil {
		t.Error("expected error for unknown uid")
	}
}

func TestOpenEML(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.eml")
	b := filepath.Join(dir, "b.eml")
	if err := os.WriteFile(a, []byte("Subject: a\r\n\r\nA"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("Subject: b\r\n\r\nB"), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := OpenEML(b, a)
	if err != nil {
		t.Fatalf("OpenEML: %v", err)
	}
	envs, _ := src.FetchUnseen(context.Background())
	if len(envs) != 2 || !strings.HasSuffix(string(envs[0].Raw), "B") {
		t.Errorf("envelopes = %+v", envs)
	}

	if _, err := OpenEML(filepath.Join(dir, "missing.eml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenMbox_Missing(t *testing.T) {
	if _, err := OpenMbox(filepath.Join(t.TempDir(), "none.mbox")); err == nil {
		t.Error("expected error")
	}
}
