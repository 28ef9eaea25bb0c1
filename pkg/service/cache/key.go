package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// Key derives a stable cache key from a guidance text and the customer
// situation it was validated against. A verdict is not transferable
// across situations: the same text can pass for one profile and fail a
// disclosure rule for another, so the segment and flags are part of the
// key. Normalization (lowercase, collapsed whitespace, sorted flags)
// makes trivially reworded variants share an entry; hashing keeps
// customer text out of cache keys and log lines.
func Key(guidance string, profile *model.CustomerProfile) string {
	segment := ""
	var flags []string
	if profile != nil {
		segment = profile.Segment
		flags = make([]string, len(profile.Flags))
		for i, f := range profile.Flags {
			flags[i] = strings.ToLower(f)
		}
		sort.Strings(flags)
	}

	var sb strings.Builder
	sb.WriteString(strings.ToLower(strings.Join(strings.Fields(guidance), " ")))
	sb.WriteByte('\n')
	sb.WriteString(strings.ToLower(segment))
	sb.WriteByte('\n')
	sb.WriteString(strings.Join(flags, ","))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
