package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/yzzyx/imap-fingerprint/fingerprint"
	"github.com/yzzyx/imap-fingerprint/scan"
)

// Format selects how a run is written
type Format string

// Supported formats
const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// Run is the result of fingerprinting one account
type Run struct {
	ID       uuid.UUID
	Host     string
	Username string
	Started  time.Time
	Mapping  fingerprint.Mapping
	Stats    scan.Stats
}

// NewRun returns a run with a fresh id, started now
func NewRun(host, username string) Run {
	return Run{
		ID:       uuid.New(),
		Host:     host,
		Username: username,
		Started:  time.Now().UTC(),
	}
}

// Write writes run to w in the given format. The sqlite format needs a file, see WriteSQLite.
func Write(w io.Writer, format Format, run Run) error {
	switch format {
	case FormatText, "":
		return writeText(w, run.Mapping)
	case FormatJSON:
		return writeJSON(w, run)
	case FormatSQLite:
		return fmt.Errorf("format %s cannot be written to a stream", format)
	}
	return fmt.Errorf("unknown format %q", format)
}

// writeText writes one "folder/UID,digest" line per message, ordered by key
func writeText(w io.Writer, m fingerprint.Mapping) error {
	bw := bufio.NewWriter(w)
	for _, k := range m.Keys() {
		fp := m[k]
		if _, err := fmt.Fprintf(bw, "%s,%s\n", k, fp); err != nil {
			return err
		}
	}
	return bw.Flush()
}

type jsonEntry struct {
	Folder      string `json:"folder"`
	UID         uint32 `json:"uid"`
	Fingerprint string `json:"fingerprint"`
}

type jsonRun struct {
	RunID      string      `json:"run_id"`
	Host       string      `json:"host"`
	Username   string      `json:"username"`
	Started    time.Time   `json:"started"`
	Stats      scan.Stats  `json:"stats"`
	Entries    []jsonEntry `json:"entries"`
	Duplicates [][]string  `json:"duplicates"`
}

func writeJSON(w io.Writer, run Run) error {
	out := jsonRun{
		RunID:      run.ID.String(),
		Host:       run.Host,
		Username:   run.Username,
		Started:    run.Started,
		Stats:      run.Stats,
		Entries:    make([]jsonEntry, 0, len(run.Mapping)),
		Duplicates: [][]string{},
	}
	for _, k := range run.Mapping.Keys() {
		out.Entries = append(out.Entries, jsonEntry{Folder: k.Folder, UID: k.UID, Fingerprint: run.Mapping[k].String()})
	}
	for _, group := range run.Mapping.Duplicates() {
		keys := make([]string, 0, len(group))
		for _, k := range group {
			keys = append(keys, k.String())
		}
		out.Duplicates = append(out.Duplicates, keys)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
