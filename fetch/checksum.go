package fetch

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Verification is the outcome of integrity checking an artifact.
type Verification string

const (
	// Verified means the computed digest matched the expected one.
	Verified Verification = "verified"
	// Unverified means no digest was available to check against. Many
	// public archives publish none, so this is not a failure by default.
	Unverified Verification = "unverified"
)

// MismatchError reports a checksum mismatch. Retrying the same source cannot
// fix it; callers should fall back to another source instead.
type MismatchError struct {
	Path string
	Got  string
	Want string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("fetch: checksum mismatch for %s: got %s, want %s", e.Path, e.Got, e.Want)
}

// ErrDigestUnavailable is returned in fail-closed mode when no digest could
// be obtained for an artifact.
var ErrDigestUnavailable = fmt.Errorf("fetch: no digest available for verification")

// DigestFile computes the hex-encoded SHA-256 of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify integrity-checks the artifact at path. The expected digest comes
// from explicit if non-empty, otherwise from digestURL if non-empty. With
// neither, the artifact is reported Unverified — unless requireDigest is
// set, in which case ErrDigestUnavailable is returned.
func (c *Client) Verify(ctx context.Context, path, explicit, digestURL string, requireDigest bool) (Verification, error) {
	want := strings.ToLower(strings.TrimSpace(explicit))
	if want == "" && digestURL != "" {
		fetched, err := c.fetchDigest(ctx, digestURL, filepath.Base(path))
		if err != nil {
			c.opts.Logger.Warn("digest fetch failed", "url", digestURL, "error", err)
		} else {
			want = fetched
		}
	}

	if want == "" {
		if requireDigest {
			return Unverified, ErrDigestUnavailable
		}
		c.opts.Logger.Info("artifact unverified, no digest available", "path", path)
		return Unverified, nil
	}

	got, err := DigestFile(path)
	if err != nil {
		return Unverified, err
	}
	if got != want {
		return Unverified, &MismatchError{Path: path, Got: got, Want: want}
	}
	return Verified, nil
}

// fetchDigest downloads a digest file and extracts the hex digest for name.
// Accepted formats: a bare hex digest, or sha256sum-style "<hex>  <name>"
// lines (the first line wins when no name matches).
func (c *Client) fetchDigest(ctx context.Context, url, name string) (string, error) {
	resp, err := c.get(ctx, url, 0)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var first string
	sc := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || !isHexDigest(fields[0]) {
			continue
		}
		digest := strings.ToLower(fields[0])
		if first == "" {
			first = digest
		}
		if len(fields) > 1 && strings.TrimPrefix(fields[len(fields)-1], "*") == name {
			return digest, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read digest body: %w", err)
	}
	if first == "" {
		return "", fmt.Errorf("fetch: no digest found in %s", url)
	}
	return first, nil
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
