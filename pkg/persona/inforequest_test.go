// Copyright 2025 Tom Barlow
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

package persona

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maflow/orchestrator/pkg/security"
)

func TestNormalizeInfoRequest_HTTPGetShorthand(t *testing.T) {
	req, err := NormalizeInfoRequest(map[string]interface{}{"http_get": "https://example.com/docs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Kind != InfoRequestHTTPGet || req.Target != "https://example.com/docs" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestNormalizeInfoRequest_RepoFileShorthand(t *testing.T) {
	req, err := NormalizeInfoRequest(map[string]interface{}{"repo_file": "internal/foo.go#L2-L3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Kind != InfoRequestRepoFile || req.Target != "internal/foo.go#L2-L3" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestNormalizeInfoRequest_MissingKeyErrors(t *testing.T) {
	if _, err := NormalizeInfoRequest(map[string]interface{}{}); err == nil {
		t.Fatal("expected an error for a request with neither key set")
	}
}

func TestInfoRequest_SourceKeyCollapsesAnchorsOnSameFile(t *testing.T) {
	a := InfoRequest{Kind: InfoRequestRepoFile, Target: "a.go#L2-L3"}
	b := InfoRequest{Kind: InfoRequestRepoFile, Target: "a.go#L10-L20"}
	if a.sourceKey() != b.sourceKey() {
		t.Fatalf("expected anchors on the same file to collapse to one source key, got %q and %q", a.sourceKey(), b.sourceKey())
	}
}

func TestInfoRequest_SourceKeyDistinguishesDifferentFiles(t *testing.T) {
	a := InfoRequest{Kind: InfoRequestRepoFile, Target: "a.go"}
	b := InfoRequest{Kind: InfoRequestRepoFile, Target: "b.go"}
	if a.sourceKey() == b.sourceKey() {
		t.Fatal("expected different files to produce different source keys")
	}
}

func TestResolveInfoRequest_HTTPGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from the server"))
	}))
	defer server.Close()

	cfg := &security.HTTPSecurityConfig{AllowedSchemes: []string{"http"}}
	content, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestHTTPGet, Target: server.URL}, "", cfg, server.Client(), 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "hello from the server" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestResolveInfoRequest_HTTPGetDeniedHost(t *testing.T) {
	cfg := &security.HTTPSecurityConfig{AllowedSchemes: []string{"https"}, DeniedHosts: []string{"blocked.example.com"}}
	_, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestHTTPGet, Target: "https://blocked.example.com/x"}, "", cfg, http.DefaultClient, 1<<20)
	if err == nil {
		t.Fatal("expected an error for a denied host")
	}
}

func TestResolveInfoRequest_HTTPGetByteCapTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer server.Close()

	cfg := &security.HTTPSecurityConfig{AllowedSchemes: []string{"http"}}
	content, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestHTTPGet, Target: server.URL}, "", cfg, server.Client(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(content) != 10 {
		t.Fatalf("expected content capped at 10 bytes, got %d", len(content))
	}
}

func TestResolveInfoRequest_RepoFileWithAnchor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.go")
	os.WriteFile(path, []byte("line1\nline2\nline3\nline4\n"), 0o644)

	content, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestRepoFile, Target: "foo.go#L2-L3"}, dir, nil, nil, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "line2\nline3" {
		t.Fatalf("unexpected sliced content: %q", content)
	}
}

func TestResolveInfoRequest_RepoFileWholeFileWithoutAnchor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.go")
	os.WriteFile(path, []byte("whole file"), 0o644)

	content, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestRepoFile, Target: "foo.go"}, dir, nil, nil, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "whole file" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestResolveInfoRequest_RepoFilePathEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveInfoRequest(context.Background(), InfoRequest{Kind: InfoRequestRepoFile, Target: "../../etc/passwd"}, dir, nil, nil, 1<<20)
	if err == nil {
		t.Fatal("expected an error for a path escaping the repo root")
	}
}

func TestSliceLines_ClampsOutOfRangeEnd(t *testing.T) {
	text := "a\nb\nc"
	if got := sliceLines(text, 2, 100); got != "b\nc" {
		t.Fatalf("unexpected slice: %q", got)
	}
}

func TestSliceLines_StartBeyondLengthReturnsEmpty(t *testing.T) {
	text := "a\nb\nc"
	if got := sliceLines(text, 10, 20); got != "" {
		t.Fatalf("expected empty slice, got %q", got)
	}
}
