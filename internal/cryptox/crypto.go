// Package cryptox computes content digests used for backup change detection.
package cryptox

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// HashReader returns the hex-encoded BLAKE2b-256 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash streams the file at path through BLAKE2b-256.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// Digest is an incremental BLAKE2b-256 writer.
type Digest struct {
	h hash.Hash
}

func NewDigest() *Digest {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return &Digest{h: h}
}

func (d *Digest) Write(p []byte) (int, error) { return d.h.Write(p) }

// Hex returns the digest of everything written so far.
func (d *Digest) Hex() string { return hex.EncodeToString(d.h.Sum(nil)) }
