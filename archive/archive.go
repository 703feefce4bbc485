// Package archive walks the member files of downloaded dataset archives.
// Archives are streamed one member at a time so multi-gigabyte inputs never
// require full extraction to disk or memory; each Walk call re-opens the
// artifact, so a fresh pass over the same file reproduces the same sequence.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies an archive container type.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
	FormatGz    Format = "gz" // single gzip-compressed member
)

// ErrUnsupported is returned for files that are not a recognized archive.
var ErrUnsupported = errors.New("archive: unsupported format")

// Member is one file inside an archive. Data holds the full member content;
// members (individual case files) are small even when the archive is not.
type Member struct {
	Path string
	Data []byte
}

// Stats counts the outcome of one Walk pass.
type Stats struct {
	Members int // members handed to the callback
	Skipped int // members that failed to read and were passed over
}

// Config configures a Walker.
type Config struct {
	// MaxMemberSize caps the bytes read for a single member; larger
	// members are skipped and counted. Default: 256 MB.
	MaxMemberSize int64

	// Logger for skipped members. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxMemberSize <= 0 {
		c.MaxMemberSize = 256 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Walker extracts archive members.
type Walker struct {
	cfg Config
}

// New creates a Walker with the given configuration.
func New(cfg Config) *Walker {
	cfg.defaults()
	return &Walker{cfg: cfg}
}

// Detect returns the archive format of the file at path, by extension first
// and content sniffing as a fallback.
func Detect(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".gz"):
		return FormatGz, nil
	}
	return sniff(path)
}

// sniff inspects magic bytes. Gzip streams are additionally probed for an
// inner tar header so "data.bin" downloads still route correctly.
func sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("archive: read %s: %w", path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return FormatZip, nil
	case bytes.HasPrefix(head, []byte{0x1f, 0x8b}):
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return FormatGz, nil
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			return FormatGz, nil
		}
		defer gz.Close()
		inner := make([]byte, 262)
		if n, _ := io.ReadFull(gz, inner); n >= 262 && string(inner[257:262]) == "ustar" {
			return FormatTarGz, nil
		}
		return FormatGz, nil
	case len(head) >= 262 && string(head[257:262]) == "ustar":
		return FormatTar, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// Walk streams every member of the archive at path through fn. A member
// that cannot be read is skipped and counted, not fatal; an error returned
// by fn aborts the walk and is returned as-is. A file that cannot be opened
// as an archive at all is fatal for the artifact.
func (w *Walker) Walk(path string, fn func(Member) error) (*Stats, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZip:
		return w.walkZip(path, fn)
	case FormatTar:
		return w.walkTarFile(path, false, fn)
	case FormatTarGz:
		return w.walkTarFile(path, true, fn)
	case FormatGz:
		return w.walkGzip(path, fn)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
}

func (w *Walker) walkZip(path string, fn func(Member) error) (*Stats, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open zip %s: %w", path, err)
	}
	defer zr.Close()

	stats := &Stats{}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if int64(zf.UncompressedSize64) > w.cfg.MaxMemberSize {
			w.cfg.Logger.Warn("member skipped, too large",
				"archive", path, "member", zf.Name, "bytes", zf.UncompressedSize64)
			stats.Skipped++
			continue
		}
		data, err := readZipMember(zf, w.cfg.MaxMemberSize)
		if err != nil {
			w.cfg.Logger.Warn("member skipped, unreadable",
				"archive", path, "member", zf.Name, "error", err)
			stats.Skipped++
			continue
		}
		stats.Members++
		if err := fn(Member{Path: zf.Name, Data: data}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func readZipMember(zf *zip.File, limit int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}

func (w *Walker) walkTarFile(path string, compressed bool, fn func(Member) error) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("archive: open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return w.walkTar(path, r, fn)
}

func (w *Walker) walkTar(path string, r io.Reader, fn func(Member) error) (*Stats, error) {
	tr := tar.NewReader(r)
	stats := &Stats{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			// The tar stream itself is broken; nothing further can be
			// read reliably.
			if stats.Members == 0 && stats.Skipped == 0 {
				return nil, fmt.Errorf("archive: open tar %s: %w", path, err)
			}
			w.cfg.Logger.Warn("tar stream truncated", "archive", path, "error", err)
			stats.Skipped++
			return stats, nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > w.cfg.MaxMemberSize {
			w.cfg.Logger.Warn("member skipped, too large",
				"archive", path, "member", hdr.Name, "bytes", hdr.Size)
			stats.Skipped++
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return stats, nil
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tr, w.cfg.MaxMemberSize))
		if err != nil {
			w.cfg.Logger.Warn("member skipped, unreadable",
				"archive", path, "member", hdr.Name, "error", err)
			stats.Skipped++
			continue
		}
		stats.Members++
		if err := fn(Member{Path: hdr.Name, Data: data}); err != nil {
			return stats, err
		}
	}
}

// walkGzip treats a bare .gz file as an archive with a single member named
// after the artifact, extension stripped.
func (w *Walker) walkGzip(path string, fn func(Member) error) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: open gzip %s: %w", path, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(io.LimitReader(gz, w.cfg.MaxMemberSize))
	if err != nil {
		return nil, fmt.Errorf("archive: decompress %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".gz")
	if err := fn(Member{Path: name, Data: data}); err != nil {
		return &Stats{Members: 1}, err
	}
	return &Stats{Members: 1}, nil
}
