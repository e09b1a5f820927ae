// Copyright © 2020 Elias Norberg
// Licensed under the GPLv3 or later.
// See COPYING at the root of the repository for details.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/yzzyx/imap-fingerprint/fingerprint"
	"github.com/yzzyx/imap-fingerprint/imap"
)

// Stats summarises a run
type Stats struct {
	FoldersListed    int `json:"folders_listed"`
	FoldersProcessed int `json:"folders_processed"`
	FoldersEmpty     int `json:"folders_empty"`
	FoldersFiltered  int `json:"folders_filtered"`
	FoldersFailed    int `json:"folders_failed"` // unselectable, or select/search/fetch failed

	MessagesSeen          int `json:"messages_seen"`
	MessagesFingerprinted int `json:"messages_fingerprinted"`
	MessagesSkipped       int `json:"messages_skipped"`
}

// Bar tracks progress through the messages of a single folder
type Bar interface {
	Add(n int) error
	Finish() error
}

// ProgressFunc creates a progress bar for a folder holding total messages
type ProgressFunc func(folder string, total int) Bar

// Enumerator walks every folder of a session and fingerprints each message.
// Folders are processed one at a time, since a session only has one selected folder.
type Enumerator struct {
	Log    *slog.Logger
	Filter Filter

	// BatchSize limits the number of UIDs per FETCH. 0 fetches a folder in a single request.
	BatchSize int

	// Progress is optional
	Progress ProgressFunc
}

// Run lists all folders and returns the fingerprint of every message found.
// Only a failure to list folders, or ctx being cancelled, is returned as an error;
// folders and messages that cannot be read are logged and skipped.
func (e *Enumerator) Run(ctx context.Context, session Session) (fingerprint.Mapping, Stats, error) {
	log := e.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var stats Stats
	folders, err := session.ListFolders()
	if err != nil {
		return nil, stats, fmt.Errorf("listing folders: %w", err)
	}
	stats.FoldersListed = len(folders)

	result := make(fingerprint.Mapping)
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return result, stats, err
		}

		if !e.Filter.Match(folder.Name) {
			log.Info("skipping ignored folder", "folder", folder.Name)
			stats.FoldersFiltered++
			continue
		}
		if !folder.Selectable() {
			log.Debug("skipping unselectable folder", "folder", folder.Name, "attributes", folder.Attributes)
			stats.FoldersFailed++
			continue
		}

		entries, ok := e.processFolder(log, session, folder.Name, &stats)
		if !ok {
			stats.FoldersFailed++
			continue
		}
		for k, fp := range entries {
			result[k] = fp
		}
	}
	return result, stats, nil
}

// processFolder returns the fingerprints of a single folder.
// If the folder could not be read, ok is false and nothing from it should be kept.
func (e *Enumerator) processFolder(log *slog.Logger, session Session, name string, stats *Stats) (entries fingerprint.Mapping, ok bool) {
	log = log.With("folder", name)

	mbox, err := session.Select(name)
	if err != nil {
		log.Error("could not select folder", "error", err)
		return nil, false
	}

	uids, err := mbox.SearchAll()
	if err != nil {
		log.Error("could not search folder", "error", err)
		return nil, false
	}
	if len(uids) == 0 {
		log.Info("skipping empty folder")
		stats.FoldersEmpty++
		return nil, true
	}

	log.Info("processing folder", "messages", len(uids))

	var bar Bar
	if e.Progress != nil {
		bar = e.Progress(name, len(uids))
	}

	entries = make(fingerprint.Mapping, len(uids))
	var seen, skipped int
	for _, batch := range batches(uids, e.BatchSize) {
		messages, err := mbox.FetchEnvelopes(batch)
		if err != nil {
			log.Error("could not fetch envelopes", "error", err, "uids", len(batch))
			if bar != nil {
				_ = bar.Finish()
			}
			return nil, false
		}

		for _, msg := range messages {
			seen++
			if bar != nil {
				_ = bar.Add(1)
			}

			fp, err := messageFingerprint(msg)
			if err != nil {
				args := []any{"uid", msg.UID, "reason", err}
				if msg.Envelope != nil && msg.Envelope.Subject != "" {
					args = append(args, "subject", msg.Envelope.Subject)
				}
				log.Warn("skipping message", args...)
				skipped++
				continue
			}
			entries[fingerprint.Key{Folder: name, UID: msg.UID}] = fp
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	stats.FoldersProcessed++
	stats.MessagesSeen += seen
	stats.MessagesSkipped += skipped
	stats.MessagesFingerprinted += len(entries)
	log.Info("processed folder", "messages", seen, "fingerprinted", len(entries), "skipped", skipped)
	return entries, true
}

var (
	errNoEnvelope  = errors.New("missing envelope")
	errNoDate      = errors.New("missing date")
	errNoMessageID = errors.New("missing message-id")
)

func messageFingerprint(msg imap.Message) (fingerprint.Fingerprint, error) {
	switch {
	case msg.Envelope == nil:
		return fingerprint.Fingerprint{}, errNoEnvelope
	case msg.Envelope.Date == "":
		return fingerprint.Fingerprint{}, errNoDate
	case msg.Envelope.MessageID == "":
		return fingerprint.Fingerprint{}, errNoMessageID
	}
	return fingerprint.Compute(msg.Envelope.Date, msg.Envelope.MessageID), nil
}

// batches splits uids into chunks of at most size entries. size <= 0 returns a single chunk.
func batches(uids []uint32, size int) [][]uint32 {
	if size <= 0 || len(uids) <= size {
		return [][]uint32{uids}
	}
	out := make([][]uint32, 0, (len(uids)+size-1)/size)
	for i := 0; i < len(uids); i += size {
		j := i + size
		if j > len(uids) {
			j = len(uids)
		}
		out = append(out, uids[i:j])
	}
	return out
}
