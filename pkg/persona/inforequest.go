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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
)

// InfoRequestKind distinguishes the two information-request shapes the
// dispatcher resolves.
type InfoRequestKind string

const (
	InfoRequestHTTPGet  InfoRequestKind = "http_get"
	InfoRequestRepoFile InfoRequestKind = "repo_file"
)

// InfoRequest is one normalized information request from a persona's
// info_request response.
type InfoRequest struct {
	Kind InfoRequestKind
	// Target is the URL (http_get) or repo-relative path, optionally
	// carrying a "#L2-L3" anchor (repo_file).
	Target string
}

var anchorPattern = regexp.MustCompile(`#L(\d+)(?:-L(\d+))?$`)

// NormalizeInfoRequest accepts either shorthand form a persona may emit:
// {"http_get": "https://..."} or {"repo_file": "path#L2-L3"}.
func NormalizeInfoRequest(raw map[string]interface{}) (InfoRequest, error) {
	if url, ok := raw["http_get"].(string); ok && url != "" {
		return InfoRequest{Kind: InfoRequestHTTPGet, Target: url}, nil
	}
	if path, ok := raw["repo_file"].(string); ok && path != "" {
		return InfoRequest{Kind: InfoRequestRepoFile, Target: path}, nil
	}
	return InfoRequest{}, &maerrors.ValidationError{
		Field:   "information_request",
		Message: "expected an \"http_get\" or \"repo_file\" key",
	}
}

// sourceKey identifies a distinct information source for the
// max_unique_sources bound: two requests for different line ranges of the
// same repo_file, or the same URL, count as one source.
func (r InfoRequest) sourceKey() string {
	if r.Kind == InfoRequestRepoFile {
		if loc := anchorPattern.FindStringIndex(r.Target); loc != nil {
			return string(r.Kind) + ":" + r.Target[:loc[0]]
		}
	}
	return string(r.Kind) + ":" + r.Target
}

// ResolveInfoRequest fetches the content an information request asks for,
// honoring a deny-host-list for http_get and a repo-root-scoped read with
// optional GitHub-style #L2-L3 anchors for repo_file. Both paths are
// bounded by a byte cap; an http_get to a denied host or a repo_file
// escaping repoRoot returns an error record rather than content.
func ResolveInfoRequest(ctx context.Context, req InfoRequest, repoRoot string, httpCfg *security.HTTPSecurityConfig, httpClient *http.Client, byteCap int64) (string, error) {
	switch req.Kind {
	case InfoRequestHTTPGet:
		return resolveHTTPGet(ctx, req.Target, httpCfg, httpClient, byteCap)
	case InfoRequestRepoFile:
		return resolveRepoFile(req.Target, repoRoot, byteCap)
	default:
		return "", &maerrors.ValidationError{Field: "information_request.kind", Message: "unknown information request kind"}
	}
}

func resolveHTTPGet(ctx context.Context, rawURL string, httpCfg *security.HTTPSecurityConfig, client *http.Client, byteCap int64) (string, error) {
	if err := httpCfg.ValidateURL(rawURL); err != nil {
		return "", &maerrors.ExternalError{Service: "http_get", Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &maerrors.ExternalError{Service: "http_get", Message: "invalid request", Cause: err}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", &maerrors.ExternalError{Service: "http_get", Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &maerrors.ExternalError{Service: "http_get", StatusCode: resp.StatusCode, Message: "non-2xx response"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, byteCap))
	if err != nil {
		return "", &maerrors.ExternalError{Service: "http_get", Message: "failed reading response body", Cause: err}
	}
	return string(body), nil
}

func resolveRepoFile(target, repoRoot string, byteCap int64) (string, error) {
	path := target
	startLine, endLine := 0, 0
	if loc := anchorPattern.FindStringSubmatchIndex(path); loc != nil {
		m := anchorPattern.FindStringSubmatch(path)
		startLine, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			endLine, _ = strconv.Atoi(m[2])
		} else {
			endLine = startLine
		}
		path = path[:loc[0]]
	}

	absPath := filepath.Join(repoRoot, path)
	if err := security.NewRepoReadSecurityConfig(repoRoot).ValidatePath(absPath, security.ActionRead); err != nil {
		return "", &maerrors.PolicyViolation{Rule: "path_escape", Detail: fmt.Sprintf("repo_file %q escapes the working copy: %v", target, err)}
	}

	f, err := os.Open(absPath)
	if err != nil {
		return "", &maerrors.ExternalError{Service: "repo_file", Message: "read failed", Cause: err}
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, byteCap))
	if err != nil {
		return "", &maerrors.ExternalError{Service: "repo_file", Message: "read failed", Cause: err}
	}

	if startLine == 0 {
		return string(content), nil
	}
	return sliceLines(string(content), startLine, endLine), nil
}

// sliceLines returns the 1-indexed, inclusive [start, end] line range of
// text, clamped to the text's actual bounds.
func sliceLines(text string, start, end int) string {
	lines := strings.Split(text, "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
