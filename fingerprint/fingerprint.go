// Copyright © 2020 Elias Norberg
// Licensed under the GPLv3 or later.
// See COPYING at the root of the repository for details.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Size is the length of a fingerprint in bytes
const Size = sha256.Size

// Fingerprint is a coarse signature of a message, derived from its
// Date and Message-ID headers. It does not cover the message body.
type Fingerprint [Size]byte

// Compute returns the fingerprint for a message with the given raw Date and Message-ID
// header values. Both are hashed exactly as the server returned them.
func Compute(date, messageID string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(date))
	h.Write([]byte(messageID))

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// String returns the lowercase hex encoding of the fingerprint
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// Parse decodes a hex encoded fingerprint
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(b) != Size {
		return fp, fmt.Errorf("invalid fingerprint %q: expected %d bytes, got %d", s, Size, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

// Key identifies a message on the server. UIDs are only unique within
// a single folder, so the folder name is always part of the key.
type Key struct {
	Folder string
	UID    uint32
}

func (k Key) String() string {
	return k.Folder + "/" + strconv.FormatUint(uint64(k.UID), 10)
}

// ParseKey parses the "folder/UID" form returned by Key.String.
// Folder names may themselves contain slashes, so the last one separates the UID.
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, fmt.Errorf("invalid key %q", s)
	}
	uid, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("invalid uid in key %q: %w", s, err)
	}
	return Key{Folder: s[:idx], UID: uint32(uid)}, nil
}

func (k Key) less(o Key) bool {
	if k.Folder != o.Folder {
		return k.Folder < o.Folder
	}
	return k.UID < o.UID
}

// Mapping holds the fingerprint of every message seen during a run
type Mapping map[Key]Fingerprint

// Keys returns all keys, ordered by folder and then UID
func (m Mapping) Keys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Duplicates returns every group of two or more keys that share a fingerprint.
// Keys within a group are ordered, and groups are ordered by their first key.
func (m Mapping) Duplicates() [][]Key {
	byPrint := make(map[Fingerprint][]Key)
	for _, k := range m.Keys() {
		fp := m[k]
		byPrint[fp] = append(byPrint[fp], k)
	}

	var groups [][]Key
	for _, keys := range byPrint {
		if len(keys) > 1 {
			groups = append(groups, keys)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].less(groups[j][0]) })
	return groups
}

// Equal reports whether both mappings contain the same keys with the same fingerprints
func (m Mapping) Equal(o Mapping) bool {
	if len(m) != len(o) {
		return false
	}
	for k, fp := range m {
		if ofp, ok := o[k]; !ok || ofp != fp {
			return false
		}
	}
	return true
}
