package evidence

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Fingerprint is a 64-bit perceptual hash.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// Similarity is 1 - hamming/64, so identical hashes score 1.
func Similarity(a, b Fingerprint) float64 {
	return 1 - float64(bits.OnesCount64(uint64(a)^uint64(b)))/64
}

// Fingerprinter computes perceptual fingerprints.
type Fingerprinter interface {
	Fingerprint(image []byte) (Fingerprint, error)
}

// PerceptionHasher implements Fingerprinter with a DCT pHash.
type PerceptionHasher struct{}

func NewPerceptionHasher() PerceptionHasher {
	return PerceptionHasher{}
}

func (PerceptionHasher) Fingerprint(data []byte) (Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

// Decodable checks the image header without decoding pixels.
func Decodable(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unrecognised image: %w", err)
	}
	return nil
}
