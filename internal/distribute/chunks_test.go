// ABOUTME: Tests for script encoding and chunk splitting.
// ABOUTME: Verifies the split-concat-decode round trip and the chunk count formula.

package distribute

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sizes := []int{1, 17, 2999, 3000, 3001, 12345, ChunkSize * 3}

	for _, n := range sizes {
		payload := make([]byte, n)
		rng.Read(payload)

		encoded := EncodeScript(payload)
		chunks := Chunks(encoded, ChunkSize)

		wantChunks := (len(encoded) + ChunkSize - 1) / ChunkSize
		require.Len(t, chunks, wantChunks, "payload of %d bytes", n)

		for i, c := range chunks {
			if i < len(chunks)-1 {
				assert.Len(t, c, ChunkSize, "non-final chunk %d must be full", i)
			} else {
				assert.LessOrEqual(t, len(c), ChunkSize)
				assert.NotEmpty(t, c)
			}
		}

		decoded, err := DecodeScript(strings.Join(chunks, ""))
		require.NoError(t, err)
		assert.Equal(t, payload, decoded, "reassembly must reproduce the original bytes")
	}
}

func TestChunksEmptyInput(t *testing.T) {
	assert.Nil(t, Chunks("", ChunkSize))
}

func TestChunksSmallSizes(t *testing.T) {
	chunks := Chunks("abcdef", 4)
	assert.Equal(t, []string{"abcd", "ef"}, chunks)

	chunks = Chunks("abcd", 4)
	assert.Equal(t, []string{"abcd"}, chunks)

	assert.Nil(t, Chunks("abcd", 0))
}
