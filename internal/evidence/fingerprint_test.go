package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity(42, 42))
	assert.Equal(t, 0.0, Similarity(0, ^Fingerprint(0)))
	assert.InDelta(t, 1-5.0/64, Similarity(0, 0b11111), 1e-12)
}

func TestFingerprintString(t *testing.T) {
	t.Parallel()

	fp := Fingerprint(0xDEADBEEF)
	parsed, err := ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
	assert.Len(t, fp.String(), 16)

	_, err = ParseFingerprint("zz")
	assert.Error(t, err)
}

func TestPerceptionHasher(t *testing.T) {
	t.Parallel()

	h := NewPerceptionHasher()
	img := pngImage(t, 9)

	a, err := h.Fingerprint(img)
	require.NoError(t, err)
	b, err := h.Fingerprint(img)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = h.Fingerprint([]byte("nope"))
	assert.Error(t, err)
}

func TestDecodable(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Decodable(pngImage(t, 3)))
	assert.Error(t, Decodable(nil))
	assert.Error(t, Decodable([]byte{0xFF, 0xD8, 0x00}))
}

func TestExifExtractor_NoMetadata(t *testing.T) {
	t.Parallel()

	meta, err := NewExifExtractor().Extract(pngImage(t, 2))
	require.NoError(t, err)
	assert.False(t, meta.Present)
	assert.Nil(t, meta.GPS)
}

func TestCamera(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Canon EOS 80D", camera("Canon", "Canon EOS 80D"))
	assert.Equal(t, "Google Pixel 8", camera("Google", "Pixel 8"))
	assert.Equal(t, "Pixel 8", camera("", "Pixel 8"))
	assert.Equal(t, "Apple", camera("Apple", ""))
}

func TestDistanceMeters(t *testing.T) {
	t.Parallel()

	d := DistanceMeters(claimedAt, pointNorth(claimedAt, 50))
	assert.InDelta(t, 50, d, 0.5)
	assert.True(t, WithinRadius(claimedAt, pointNorth(claimedAt, 499), 500))
	assert.False(t, WithinRadius(claimedAt, pointNorth(claimedAt, 501), 500))
}

func TestMemoryIndex_LookupOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, IndexEntry{Fingerprint: 0b1, PhotoID: "a", ComplaintID: "c1"}))
	require.NoError(t, idx.Insert(ctx, IndexEntry{Fingerprint: 0b0, PhotoID: "b", ComplaintID: "c2"}))
	require.NoError(t, idx.Insert(ctx, IndexEntry{Fingerprint: 0b0, PhotoID: "b", ComplaintID: "c2"}))

	matches, err := idx.Lookup(ctx, 0, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "b", matches[0].Entry.PhotoID)
	assert.Equal(t, "a", matches[1].Entry.PhotoID)
}

func TestRedisIndexCodec(t *testing.T) {
	t.Parallel()

	in := IndexEntry{Fingerprint: 0xCAFE, PhotoID: "p1", ComplaintID: "GG-2026-00001", Kind: KindBefore, AddedAt: testNow}
	field, value, err := encodeEntry(in)
	require.NoError(t, err)
	assert.Equal(t, "000000000000cafe:p1", field)

	out, err := decodeEntry(field, value)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeEntry("nocolon", value)
	assert.Error(t, err)
}

func TestMessage(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Message(ReasonAIGenerated), "AI-generated")
	assert.NotEmpty(t, Message(ReasonCode("unknown")))
	for _, code := range rejecting {
		assert.True(t, code.Rejecting())
		assert.False(t, code.Warning())
	}
}
