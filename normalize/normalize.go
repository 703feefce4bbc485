// Package normalize maps provider-specific case law records onto the
// canonical schema. Providers disagree on field names, nesting, and whether
// a file holds one record, an array, or a results wrapper; everything here
// is tolerant of missing fields, which become empty (NULL in the store).
package normalize

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Format tags the provider schema of a source member.
type Format string

const (
	// FormatAuto probes the field-name chains of all known providers.
	FormatAuto Format = "auto"
	// FormatCAP is the Harvard Caselaw Access Project volume schema.
	FormatCAP Format = "cap"
	// FormatCourtListener is the CourtListener opinion-cluster schema.
	FormatCourtListener Format = "courtlistener"
)

// DefaultCaseType is used when the source provides no type and none can be
// inferred from the title.
const DefaultCaseType = "general"

// Config configures a Normalizer.
type Config struct {
	// Format selects the provider schema. Default: FormatAuto.
	Format Format

	// Logger for per-line parse warnings. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Format == "" {
		c.Format = FormatAuto
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Normalizer converts raw member content into canonical records.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer with the given configuration.
func New(cfg Config) *Normalizer {
	cfg.defaults()
	return &Normalizer{cfg: cfg}
}

// Records parses the raw content of one archive member and returns zero or
// more canonical records. Containers handled: a single object, an array of
// objects, a {"results": [...]} wrapper, and JSONL (by .jsonl path or as a
// parse fallback). Content that cannot be parsed at all returns an error;
// callers count it and continue with the next member.
func (n *Normalizer) Records(data []byte, rawPath string) ([]Record, error) {
	if strings.HasSuffix(strings.ToLower(rawPath), ".jsonl") {
		return n.recordsFromLines(data, rawPath)
	}

	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		// Some providers ship .json files that are actually line-delimited.
		if recs, lineErr := n.recordsFromLines(data, rawPath); lineErr == nil && len(recs) > 0 {
			return recs, nil
		}
		return nil, fmt.Errorf("normalize: parse %s: %w", rawPath, err)
	}

	var out []Record
	switch v := root.(type) {
	case map[string]any:
		if results, ok := v["results"].([]any); ok {
			for _, item := range results {
				n.appendRecord(&out, item, rawPath)
			}
			return out, nil
		}
		n.appendRecord(&out, v, rawPath)
	case []any:
		for _, item := range v {
			n.appendRecord(&out, item, rawPath)
		}
	default:
		return nil, fmt.Errorf("normalize: %s: top-level %T is not a record container", rawPath, root)
	}
	return out, nil
}

func (n *Normalizer) recordsFromLines(data []byte, rawPath string) ([]Record, error) {
	var out []Record
	badLines := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec any
		if err := json.Unmarshal(text, &rec); err != nil {
			badLines++
			if badLines <= 5 {
				n.cfg.Logger.Warn("bad jsonl line", "path", rawPath, "line", line, "error", err)
			}
			continue
		}
		n.appendRecord(&out, rec, rawPath)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("normalize: scan %s: %w", rawPath, err)
	}
	if len(out) == 0 && badLines > 0 {
		return nil, fmt.Errorf("normalize: %s: no parseable lines (%d bad)", rawPath, badLines)
	}
	return out, nil
}

func (n *Normalizer) appendRecord(out *[]Record, raw any, rawPath string) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return
	}
	*out = append(*out, n.mapRecord(obj, rawPath))
}

func (n *Normalizer) mapRecord(rec map[string]any, rawPath string) Record {
	switch n.cfg.Format {
	case FormatCAP:
		return capRecord(rec, rawPath)
	case FormatCourtListener:
		return courtListenerRecord(rec, rawPath)
	default:
		return autoRecord(rec, rawPath)
	}
}

// capRecord maps a Harvard CAP case object.
func capRecord(rec map[string]any, rawPath string) Record {
	r := Record{
		ID:           str(rec["id"]),
		Title:        firstStr(rec, "name_abbreviation", "name"),
		Citation:     firstCitation(rec["citations"]),
		Court:        nameOf(rec["court"]),
		DecisionDate: str(rec["decision_date"]),
		Jurisdiction: nameOf(rec["jurisdiction"]),
		Reporter:     nameOf(rec["reporter"]),
		RawPath:      rawPath,
		FullText:     rec["casebody"] != nil,
	}
	finish(&r, rec)
	return r
}

// courtListenerRecord maps a CourtListener cluster/opinion object.
func courtListenerRecord(rec map[string]any, rawPath string) Record {
	r := Record{
		ID:           firstStr(rec, "id", "cluster_id"),
		Title:        firstStr(rec, "case_name", "case_name_short", "case_name_full"),
		Citation:     str(rec["citation"]),
		Court:        nameOf(rec["court"]),
		DecisionDate: firstStr(rec, "date_filed", "date_created"),
		Jurisdiction: nameOf(rec["jurisdiction"]),
		Reporter:     str(rec["reporter"]),
		RawPath:      rawPath,
		FullText:     rec["plain_text"] != nil || rec["html"] != nil,
	}
	if r.Citation == "" {
		r.Citation = firstCitation(rec["citations"])
	}
	finish(&r, rec)
	return r
}

// autoRecord probes the field chains of every supported provider, mirroring
// how mixed-provider dumps are ingested.
func autoRecord(rec map[string]any, rawPath string) Record {
	r := Record{
		ID:           firstStr(rec, "id", "case_id", "uuid", "cluster_id"),
		Title:        firstStr(rec, "name", "title", "case_name", "case_name_short", "name_abbreviation"),
		Court:        nameOf(rec["court"]),
		DecisionDate: firstStr(rec, "decision_date", "date", "date_filed", "date_created"),
		Jurisdiction: nameOf(rec["jurisdiction"]),
		Reporter:     firstStr(rec, "reporter", "volume"),
		RawPath:      rawPath,
		FullText: rec["casebody"] != nil || rec["plain_text"] != nil ||
			rec["html"] != nil || rec["text"] != nil,
	}
	r.Citation = firstStr(rec, "citation", "case_name_full")
	if r.Citation == "" {
		r.Citation = firstCitation(rec["citations"])
	}
	finish(&r, rec)
	return r
}

// finish fills the fallback ID and case type shared by every schema.
func finish(r *Record, rec map[string]any) {
	if r.ID == "" {
		r.ID = contentID(rec)
	}
	if r.CaseType == "" {
		r.CaseType = firstStr(rec, "type", "case_type")
	}
	if r.CaseType == "" {
		r.CaseType = inferCaseType(r.Title)
	}
}

// contentID derives a stable identifier from the record content itself.
// json.Marshal emits map keys in sorted order, so the hash is deterministic.
func contentID(rec map[string]any) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var caseTypeHints = []struct {
	caseType string
	keywords []string
}{
	{"criminal", []string{"criminal", "people v", "state v", "commonwealth v"}},
	{"contract", []string{"contract", "breach"}},
	{"employment", []string{"employ", "discriminat"}},
}

// inferCaseType guesses a category from the case title; "general" when
// nothing matches.
func inferCaseType(title string) string {
	lower := strings.ToLower(title)
	for _, hint := range caseTypeHints {
		for _, kw := range hint.keywords {
			if strings.Contains(lower, kw) {
				return hint.caseType
			}
		}
	}
	return DefaultCaseType
}

// str renders a scalar JSON value as a string; nil becomes "".
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

// firstStr returns the first non-empty scalar among the named keys.
func firstStr(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

// nameOf handles fields that are sometimes a plain string and sometimes a
// nested object with name/slug/full_name.
func nameOf(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return firstStr(t, "name", "full_name", "name_abbreviation", "slug")
	default:
		return str(v)
	}
}

// firstCitation extracts the first usable citation from a citations array,
// whose elements are either {"cite": ...} objects or plain strings.
func firstCitation(v any) string {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return ""
	}
	switch el := arr[0].(type) {
	case map[string]any:
		return str(el["cite"])
	default:
		return str(el)
	}
}
