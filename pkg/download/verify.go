package download

import (
	"fmt"
	"strings"

	pkgerrors "github.com/glorpus-work/plugd/pkg/errors"
)

// Checksum lengths in hex characters.
const (
	md5HexLen    = 32
	sha256HexLen = 64
)

// Verify compares the digest of res against the published checksum. A 32 character
// checksum is MD5, a 64 character one SHA-256. Anything else is an integrity error.
// An empty checksum is not accepted here; callers decide whether to skip.
func Verify(res Result, checksum string) error {
	want := strings.ToLower(strings.TrimSpace(checksum))

	var got, algo string
	switch len(want) {
	case md5HexLen:
		got, algo = res.MD5, "md5"
	case sha256HexLen:
		got, algo = res.SHA256, "sha256"
	default:
		return fmt.Errorf("unsupported checksum %q: %w", checksum, pkgerrors.ErrIntegrity)
	}

	if got != want {
		return fmt.Errorf("%s mismatch: expected %s, got %s: %w", algo, want, got, pkgerrors.ErrIntegrity)
	}
	return nil
}
