package research

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/yourusername/limni-research/internal/models"
)

// CanonicalJSON renders v as compact JSON with object keys sorted at every
// level and array order preserved. Numbers keep their encoded text.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}

	// encoding/json writes map keys in sorted order
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode canonical form: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Canonicalize returns the canonical byte form of a research config
func Canonicalize(cfg models.ResearchConfig) ([]byte, error) {
	return CanonicalJSON(cfg)
}

// HashBytes returns the lowercase hex SHA-256 digest of b
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashConfig returns the content hash of a research config.
// Structurally equal configs hash identically.
func HashConfig(cfg models.ResearchConfig) (string, error) {
	canonical, err := Canonicalize(cfg)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}
