// Package acquire orchestrates the download of one dataset artifact from an
// ordered list of primary sources with mirror fallback and integrity
// verification. Sources are tried strictly in order: fallback depends on a
// definitive outcome for the prior source, and parallel multi-gigabyte
// transfers would fight over the same bandwidth anyway.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Miminimi234/lawl/fetch"
)

// Role distinguishes primary sources from their mirrors.
type Role string

const (
	RolePrimary Role = "primary"
	RoleMirror  Role = "mirror"
)

// Source is one candidate location for the artifact. Immutable once built;
// list order defines fallback precedence.
type Source struct {
	URL       string
	Role      Role
	Digest    string // optional expected sha256 (hex)
	DigestURL string // optional URL of a digest file
}

// ErrNoSources is returned when Run is invoked with an empty source list.
// Callers treat it as a usage error, distinct from exhaustion.
var ErrNoSources = errors.New("acquire: no sources configured")

// ExhaustedError means every primary and mirror source failed.
type ExhaustedError struct {
	PrimariesTried int
	MirrorsTried   int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("acquire: all sources exhausted (%d primaries, %d mirrors tried)",
		e.PrimariesTried, e.MirrorsTried)
}

// Result describes a successful acquisition.
type Result struct {
	Path           string
	Size           int64
	Duration       time.Duration
	Verification   fetch.Verification
	Cached         bool // artifact already on disk, no network used
	PrimariesTried int
	MirrorsTried   int
}

// transferer is the slice of *fetch.Client the coordinator needs.
type transferer interface {
	Fetch(ctx context.Context, url, dest string) (*fetch.Result, error)
	Verify(ctx context.Context, path, explicit, digestURL string, requireDigest bool) (fetch.Verification, error)
}

// Options configures a Coordinator.
type Options struct {
	// DestDir is the directory artifacts are written into. Must exist.
	DestDir string

	// RequireDigest fails sources that cannot be verified instead of
	// accepting them as unverified.
	RequireDigest bool

	// Logger for per-source outcomes. Default: slog.Default().
	Logger *slog.Logger
}

// Coordinator runs the primary-then-mirror fallback state machine.
type Coordinator struct {
	client transferer
	opts   Options
}

// New creates a Coordinator that downloads via client.
func New(client *fetch.Client, opts Options) *Coordinator {
	return newCoordinator(client, opts)
}

func newCoordinator(client transferer, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{client: client, opts: opts}
}

// state of the fallback machine.
type state int

const (
	tryingPrimary state = iota
	tryingMirror
	succeeded
	exhausted
)

// Run tries each primary source in order, then each mirror, stopping at the
// first verified (or unverified-but-allowed) artifact. A checksum mismatch
// advances to the next source rather than retrying: the same bytes cannot
// hash differently on a second download.
func (c *Coordinator) Run(ctx context.Context, primaries, mirrors []Source) (*Result, error) {
	if len(primaries)+len(mirrors) == 0 {
		return nil, ErrNoSources
	}

	var (
		st             = tryingPrimary
		idx            int
		primariesTried int
		mirrorsTried   int
		res            *Result
		// Destination paths a source already failed for in this run.
		// Sources for the same artifact share a destination, so bytes a
		// failed source left behind must not pass for a cached artifact.
		failed = map[string]bool{}
	)

	for {
		switch st {
		case tryingPrimary:
			if idx >= len(primaries) {
				st, idx = tryingMirror, 0
				continue
			}
			primariesTried++
			if r, err := c.trySource(ctx, primaries[idx], failed); err == nil {
				res, st = r, succeeded
			} else if ctx.Err() != nil {
				return nil, ctx.Err()
			} else {
				idx++
			}

		case tryingMirror:
			if idx >= len(mirrors) {
				st = exhausted
				continue
			}
			mirrorsTried++
			if r, err := c.trySource(ctx, mirrors[idx], failed); err == nil {
				res, st = r, succeeded
			} else if ctx.Err() != nil {
				return nil, ctx.Err()
			} else {
				idx++
			}

		case succeeded:
			res.PrimariesTried = primariesTried
			res.MirrorsTried = mirrorsTried
			c.opts.Logger.Info("acquisition succeeded",
				"path", res.Path, "bytes", res.Size,
				"duration", res.Duration, "verification", res.Verification,
				"cached", res.Cached)
			return res, nil

		case exhausted:
			c.opts.Logger.Error("acquisition exhausted all sources",
				"primaries_tried", primariesTried, "mirrors_tried", mirrorsTried)
			return nil, &ExhaustedError{PrimariesTried: primariesTried, MirrorsTried: mirrorsTried}
		}
	}
}

// trySource downloads and verifies one source. Any returned error is a
// source-level failure: the coordinator moves on to the next source, and
// the destination is recorded in failed so bytes this source left behind
// (a partial transfer, a mismatched download) never short-circuit a later
// source for the same artifact.
func (c *Coordinator) trySource(ctx context.Context, src Source, failed map[string]bool) (*Result, error) {
	start := time.Now()

	name, err := ArtifactName(src.URL)
	if err != nil {
		c.opts.Logger.Warn("source skipped", "url", src.URL, "role", src.Role, "error", err)
		return nil, err
	}
	dest := filepath.Join(c.opts.DestDir, name)

	// A completed prior run left the artifact in place: succeed without
	// touching the network so re-runs are no-ops. Not applicable once a
	// source failed for this destination in this run; the next source must
	// fetch (resuming any partial) and verify.
	if !failed[dest] {
		if info, err := os.Stat(dest); err == nil && !info.IsDir() && info.Size() > 0 {
			c.opts.Logger.Info("artifact already present, skipping download",
				"path", dest, "bytes", info.Size())
			return &Result{
				Path:         dest,
				Size:         info.Size(),
				Verification: fetch.Unverified,
				Cached:       true,
			}, nil
		}
	}

	fr, err := c.client.Fetch(ctx, src.URL, dest)
	if err != nil {
		failed[dest] = true
		c.opts.Logger.Warn("source failed",
			"url", src.URL, "role", src.Role,
			"elapsed", time.Since(start), "error", err)
		return nil, err
	}

	verification, err := c.client.Verify(ctx, dest, src.Digest, src.DigestURL, c.opts.RequireDigest)
	if err != nil {
		failed[dest] = true
		c.opts.Logger.Warn("source failed verification",
			"url", src.URL, "role", src.Role,
			"elapsed", time.Since(start), "error", err)
		return nil, err
	}

	c.opts.Logger.Info("source succeeded",
		"url", src.URL, "role", src.Role,
		"bytes", fr.Size, "attempts", fr.Attempts,
		"elapsed", time.Since(start), "verification", verification)

	return &Result{
		Path:         dest,
		Size:         fr.Size,
		Duration:     time.Since(start),
		Verification: verification,
	}, nil
}

// ArtifactName derives the local filename for a source URL: the final path
// segment with any query string stripped.
func ArtifactName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("acquire: parse url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("acquire: url %q has no usable path segment", rawURL)
	}
	return name, nil
}
