// Package naming derives deterministic avatar filenames from a profile uuid
// and a display level.
package naming

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// FileExtension is appended to internal names; every rendition is PNG.
const FileExtension = ".png"

// MinSecretLength is the shortest accepted external-name key.
const MinSecretLength = 16

// Derivation holds both names for one (uuid, display) pair.
type Derivation struct {
	// Internal names the rendition files on disk.
	Internal string
	// External is the opaque name exposed in the picture attribute.
	External string
}

// Deriver computes names. It is safe for concurrent use.
type Deriver struct {
	pool sync.Pool
}

// NewDeriver builds a Deriver keyed with secret.
func NewDeriver(secret []byte) (*Deriver, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("naming secret must be at least %d bytes", MinSecretLength)
	}
	if len(secret) > blake2b.Size {
		return nil, errors.New("naming secret must be at most 64 bytes")
	}
	key := append([]byte(nil), secret...)
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("naming secret: %w", err)
	}
	d := &Deriver{}
	d.pool.New = func() any {
		h, _ := blake2b.New256(key)
		return h
	}
	return d, nil
}

// Derive returns the internal and external names for uuid and display.
func (d *Deriver) Derive(uuid, display string) Derivation {
	return Derivation{
		Internal: internalName(uuid, display),
		External: d.ExternalName(uuid, display),
	}
}

// internalName is base64url(uuid) joined to the display level. It is
// filename safe and distinct for distinct inputs.
func internalName(uuid, display string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(uuid)) + "_" + display + FileExtension
}

// ExternalName is a keyed hash of uuid and display. When the hex digest
// happens to contain uuid the next round is used, so the result never
// reveals the uuid and stays deterministic.
func (d *Deriver) ExternalName(uuid, display string) string {
	h := d.pool.Get().(hash.Hash)
	defer d.pool.Put(h)

	var round [8]byte
	for i := uint64(0); ; i++ {
		h.Reset()
		h.Write([]byte(uuid))
		h.Write([]byte{0})
		h.Write([]byte(display))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(round[:], i)
		h.Write(round[:])
		name := hex.EncodeToString(h.Sum(nil))
		if uuid == "" || !strings.Contains(name, uuid) {
			return name
		}
	}
}
