package domain

import (
	"strings"

	"github.com/castlegate/visitbooker/internal/platform/errors"
)

// Reference encoding: a positional base over an alphabet with no vowels and
// no visually ambiguous characters (i/l/1, o/0), grouped into fixed-length
// dash-delimited chunks. The encoding is reversible, so injectivity over
// all ids follows from plain base arithmetic.
const (
	referenceAlphabet  = "bcdfghjkmnpqrstvwxyz"
	referenceBase      = int64(len(referenceAlphabet))
	referenceChunkSize = 2
	referenceMinDigits = 8
	referenceDelimiter = "-"
)

// Reference derives the public booking reference for a store-assigned id.
// The same id always yields the same reference and distinct ids never
// collide. Ids must be positive.
//
// Injectivity holds within one id sequence. Applications and visits draw
// ids from separate sequences, so an application and a visit can share a
// reference string; the two namespaces are never looked up against each
// other and references must not be compared across entity kinds.
func Reference(id int64) (string, error) {
	if id <= 0 {
		return "", errors.New(errors.CodeVisitEmptyReference, "reference id must be positive")
	}

	var digits []byte
	for value := id; value > 0; value /= referenceBase {
		digits = append(digits, referenceAlphabet[value%referenceBase])
	}
	// digits are little-endian; reverse into reading order.
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	width := len(digits)
	if width < referenceMinDigits {
		width = referenceMinDigits
	}
	if width%referenceChunkSize != 0 {
		width++
	}
	padded := strings.Repeat(string(referenceAlphabet[0]), width-len(digits)) + string(digits)

	chunks := make([]string, 0, width/referenceChunkSize)
	for i := 0; i < len(padded); i += referenceChunkSize {
		chunks = append(chunks, padded[i:i+referenceChunkSize])
	}
	return strings.Join(chunks, referenceDelimiter), nil
}

// ParseReference reverses Reference back to the originating id. It rejects
// values outside the reference alphabet or shape.
func ParseReference(reference string) (int64, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(reference), referenceDelimiter, "")
	if len(compact) < referenceMinDigits {
		return 0, errors.WithMetadata(errors.CodeVisitEmptyReference, "reference is too short", map[string]string{"reference": reference})
	}

	var id int64
	for i := 0; i < len(compact); i++ {
		digit := strings.IndexByte(referenceAlphabet, compact[i])
		if digit < 0 {
			return 0, errors.WithMetadata(errors.CodeVisitEmptyReference, "reference contains an invalid character", map[string]string{"reference": reference})
		}
		id = id*referenceBase + int64(digit)
	}
	if id <= 0 {
		return 0, errors.WithMetadata(errors.CodeVisitEmptyReference, "reference does not encode an id", map[string]string{"reference": reference})
	}
	return id, nil
}
