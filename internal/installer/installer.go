// Package installer fetches the third-party bootstrap script and
// rewrites it for the constrained guest runtime.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// MinArtifactSize is the smallest body accepted as a complete
// transfer. Anything smaller is treated as corrupted or truncated.
// This size check and non-emptiness are the only integrity checks
// performed; there is no checksum or signature verification.
const MinArtifactSize = 1024

// ErrArtifactTooSmall means the fetched script is empty or below the
// minimum size threshold. It is never retried.
var ErrArtifactTooSmall = errors.New("fetched installer is below the minimum size threshold")

// Rule is one textual patch applied to the fetched script. A rule
// either drops every line containing Match (case-insensitive) or
// replaces every literal occurrence of ReplaceOld with ReplaceNew.
type Rule struct {
	Name       string
	Match      string
	ReplaceOld string
	ReplaceNew string
}

// DefaultRules disables directives the guest runtime cannot honor and
// retargets the installer's hardcoded install path to appDir. Service
// management stripped here is re-applied explicitly by the bootstrap
// executor.
func DefaultRules(legacyPath, appDir string) []Rule {
	return []Rule{
		{Name: "drop-docker", Match: "docker"},
		{Name: "drop-compose", Match: "compose"},
		{Name: "drop-systemctl", Match: "systemctl"},
		{Name: "retarget-install-path", ReplaceOld: legacyPath, ReplaceNew: appDir},
	}
}

// Change records one line the rule set removed or altered.
type Change struct {
	Line int
	Rule string
	Text string
}

// Artifact is the fetched script plus the audit trail of applied
// patches.
type Artifact struct {
	URL   string
	Body  []byte
	Audit []Change
}

// Apply runs the rules in order against the body, line by line, and
// records every removed or altered line in the audit trail. Patching
// is best-effort and never fails the pipeline.
func (a *Artifact) Apply(rules []Rule) {
	lines := strings.Split(string(a.Body), "\n")
	kept := lines[:0]

	for i, line := range lines {
		dropped := false
		for _, r := range rules {
			if r.Match != "" && strings.Contains(strings.ToLower(line), strings.ToLower(r.Match)) {
				a.Audit = append(a.Audit, Change{Line: i + 1, Rule: r.Name, Text: line})
				dropped = true
				break
			}
			if r.ReplaceOld != "" && strings.Contains(line, r.ReplaceOld) {
				a.Audit = append(a.Audit, Change{Line: i + 1, Rule: r.Name, Text: line})
				line = strings.ReplaceAll(line, r.ReplaceOld, r.ReplaceNew)
			}
		}
		if !dropped {
			kept = append(kept, line)
		}
	}
	a.Body = []byte(strings.Join(kept, "\n"))

	for _, ch := range a.Audit {
		log.Printf("[INFO] Patched installer line %d (%s)", ch.Line, ch.Rule)
	}
}

// Fetcher retrieves the remote script with a bounded timeout and a
// bounded number of attempts.
type Fetcher struct {
	client   *http.Client
	attempts int
}

// NewFetcher creates a fetcher with the given per-request timeout and
// total attempt budget.
func NewFetcher(timeout time.Duration, attempts int) *Fetcher {
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, attempts: attempts}
}

// Fetch downloads the script, retrying transport and server failures
// up to the attempt budget, then rejects bodies below the minimum
// size. Undersized bodies are an integrity failure and not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, err := f.fetchOnce(ctx, url)
		if err != nil {
			lastErr = err
			log.Printf("[WARN] Installer fetch attempt %d/%d failed: %v", attempt, f.attempts, err)
			continue
		}
		if len(body) < MinArtifactSize {
			return nil, fmt.Errorf("%w: got %d bytes from %s", ErrArtifactTooSmall, len(body), url)
		}
		return &Artifact{URL: url, Body: body}, nil
	}
	return nil, fmt.Errorf("installer fetch failed after %d attempts: %w", f.attempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
