// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/config"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}

const authSource = `
class AuthService:
    def authenticate_user(self, username):
        svc = UserService()
        user = svc.find_by_username(username)
        tokens = TokenService()
        return tokens.issue(user)

def unrelated(db):
    db.ping()
`

func TestSequenceModelForFunction(t *testing.T) {
	a := newTestAnalyzer(t)

	m, err := a.SequenceModel(context.Background(), []byte(authSource), "auth.py", "authenticate_user")
	if err != nil {
		t.Fatalf("SequenceModel failed: %v", err)
	}
	if m.Unit != "authenticate_user" {
		t.Fatalf("unit = %q", m.Unit)
	}

	want := []string{"authenticate_user", "UserService", "TokenService"}
	if !reflect.DeepEqual(m.Participants, want) {
		t.Fatalf("participants = %v, want %v", m.Participants, want)
	}
	// Events from other functions are filtered out.
	for _, msg := range m.Messages {
		if msg.Method == "ping" {
			t.Fatalf("unrelated function leaked into the model: %+v", msg)
		}
	}
}

func TestSequenceModelForFunctionExcludesNestedScopes(t *testing.T) {
	a := newTestAnalyzer(t)
	src := `
def outer(db, cache):
    db.open()
    def helper():
        cache.flush()
    helper()
`
	m, err := a.SequenceModel(context.Background(), []byte(src), "jobs.py", "outer")
	if err != nil {
		t.Fatalf("SequenceModel failed: %v", err)
	}

	// Events inside a nested def carry that def's scope, not the unit's.
	for _, msg := range m.Messages {
		if msg.Method == "flush" {
			t.Fatalf("nested function's events leaked into the unit model: %+v", msg)
		}
	}
	if len(m.Messages) != 1 || m.Messages[0].Method != "open" {
		t.Fatalf("messages = %+v, want only the direct-scope open call", m.Messages)
	}
}

func TestSequenceModelWholeFile(t *testing.T) {
	a := newTestAnalyzer(t)

	m, err := a.SequenceModel(context.Background(), []byte(authSource), "auth.py", "")
	if err != nil {
		t.Fatalf("SequenceModel failed: %v", err)
	}
	if m.Unit != "auth.py" {
		t.Fatalf("whole-file unit = %q, want auth.py", m.Unit)
	}

	found := false
	for _, msg := range m.Messages {
		if msg.Method == "ping" {
			found = true
		}
	}
	if !found {
		t.Fatalf("whole-file analysis should include every function's events")
	}
}

func TestSequenceModelUnsupportedLanguage(t *testing.T) {
	a := newTestAnalyzer(t)
	_, err := a.SequenceModel(context.Background(), []byte("x"), "notes.txt", "")
	if !errors.Is(err, ast.ErrUnsupportedLanguage) {
		t.Fatalf("err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestSequenceModelRespectsConfiguredSizeLimit(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Analysis.MaxFileSizeBytes = 8
	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	_, err = a.SequenceModel(context.Background(), []byte(authSource), "auth.py", "")
	if !errors.Is(err, ast.ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestDependencyGraphAcrossLanguages(t *testing.T) {
	a := newTestAnalyzer(t)

	sources := map[string][]byte{
		"app/main.py":   []byte("from app.models import User\nimport requests\n"),
		"app/models.py": []byte("import os\n"),
		"web/index.ts":  []byte("import { boot } from \"./boot\";\n"),
		"web/boot.ts":   []byte("export function boot() {}\n"),
	}
	g, err := a.DependencyGraph(context.Background(), sources)
	if err != nil {
		t.Fatalf("DependencyGraph failed: %v", err)
	}
	if g.Incomplete {
		t.Fatalf("completed graph flagged incomplete")
	}

	wantInternal := map[[2]string]bool{
		{"app/main.py", "app/models.py"}: false,
		{"web/index.ts", "web/boot.ts"}:  false,
	}
	for _, e := range g.Edges {
		if e.Type == "internal" {
			key := [2]string{e.Source, e.Target}
			if _, ok := wantInternal[key]; ok {
				wantInternal[key] = true
			}
		}
	}
	for key, found := range wantInternal {
		if !found {
			t.Fatalf("missing internal edge %v (edges: %+v)", key, g.Edges)
		}
	}
}

func TestExtractCacheReturnsSameResult(t *testing.T) {
	a := newTestAnalyzer(t)

	first, err := a.extract(context.Background(), []byte(authSource), "auth.py")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	second, err := a.extract(context.Background(), []byte(authSource), "auth.py")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if first != second {
		t.Fatalf("unchanged content must hit the cache")
	}
}

func TestFileTreeUsesConfiguredExcludes(t *testing.T) {
	a := newTestAnalyzer(t)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "x"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	root, err := a.FileTree(context.Background(), dir, "repo")
	if err != nil {
		t.Fatalf("FileTree failed: %v", err)
	}
	if root.Stats.TotalFiles != 1 {
		t.Fatalf("total files = %d, want 1", root.Stats.TotalFiles)
	}
	for _, c := range root.Children {
		if c.Name == "node_modules" {
			t.Fatalf("node_modules should be excluded")
		}
	}
}
