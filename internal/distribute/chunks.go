// ABOUTME: Pure helpers for transport-safe script encoding and chunk splitting.
// ABOUTME: Chunks are sized against the encoded text, not the raw bytes.

package distribute

import "encoding/base64"

// ChunkSize is the maximum length of one script chunk, measured in
// characters of the encoded representation.
const ChunkSize = 4000

// EncodeScript encodes raw script bytes into the transport-safe text form
// carried inside envelopes.
func EncodeScript(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeScript reverses EncodeScript.
func DecodeScript(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Chunks splits encoded into consecutive pieces of at most size characters.
// Concatenating the result in order reproduces the input exactly. An empty
// input yields no chunks.
func Chunks(encoded string, size int) []string {
	if size <= 0 || encoded == "" {
		return nil
	}

	chunks := make([]string, 0, (len(encoded)+size-1)/size)
	for start := 0; start < len(encoded); start += size {
		end := start + size
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks = append(chunks, encoded[start:end])
	}
	return chunks
}
