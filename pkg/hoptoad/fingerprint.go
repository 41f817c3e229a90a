// fingerprint.go generates stable hashes for grouping similar reports.

package hoptoad

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// fingerprintFrames is the number of frames that contribute to a fingerprint.
const fingerprintFrames = 3

// Fingerprint generates a hash for grouping similar reports.
// The fingerprint is based on:
//   - ErrorType and the request component and action
//   - the first 3 non-runtime frames of the outermost cause (symbols only)
//
// Messages, line numbers, report IDs and timestamps are ignored.
func Fingerprint(r Report) string {
	parts := []string{r.ErrorType, r.Request.Component, r.Request.Action}
	if len(r.CausalChain) > 0 {
		parts = append(parts, normalizeFrames(r.CausalChain[0].Frames)...)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

// closureSuffix matches the numbering of anonymous functions, which shifts
// whenever a closure is added to the enclosing function.
var closureSuffix = regexp.MustCompile(`\.func\d+(\.\d+)*$`)

func normalizeFrames(frames []StackFrame) []string {
	var symbols []string
	for _, f := range frames {
		if f.Symbol == "" || strings.HasPrefix(f.Symbol, "runtime.") {
			continue
		}
		symbols = append(symbols, closureSuffix.ReplaceAllString(f.Symbol, ".func"))
		if len(symbols) == fingerprintFrames {
			break
		}
	}
	return symbols
}
