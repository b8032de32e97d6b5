package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CurrentCanonicalVersion defines the canonicalization format version.
// Increment when canonicalization logic changes to invalidate stale cache entries.
const CurrentCanonicalVersion = "v1"

// Validation errors for canonical payloads.
var (
	ErrOperationRequired = errors.New("operation is required")
	ErrModelRequired     = errors.New("model is required")
)

// CanonicalPayload is the normalized, stable form of a logical request.
// Equivalent requests produce identical payloads, and therefore identical keys,
// regardless of whitespace differences in the prompts.
type CanonicalPayload struct {
	Operation OperationType   `json:"operation"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	User      string          `json:"user"`
	Params    CanonicalParams `json:"params"`
	Version   string          `json:"version"`
}

// CanonicalParams holds the sampling parameters that affect output.
type CanonicalParams struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// IdemKey is the SHA-256 hex digest of a canonical payload.
type IdemKey string

// String returns the string representation of the idempotency key.
func (k IdemKey) String() string { return string(k) }

// BuildCanonicalPayload transforms a request into canonical form.
func BuildCanonicalPayload(req *Request) (*CanonicalPayload, error) {
	if req.Operation == "" {
		return nil, ErrOperationRequired
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, ErrModelRequired
	}
	return &CanonicalPayload{
		Operation: req.Operation,
		Endpoint:  strings.TrimRight(strings.TrimSpace(req.Endpoint), "/"),
		Model:     model,
		System:    normalizeText(req.SystemPrompt),
		User:      normalizeText(req.UserPrompt),
		Params: CanonicalParams{
			Temperature: req.Sampling.Temperature,
			TopP:        req.Sampling.TopP,
			TopK:        req.Sampling.TopK,
			MaxTokens:   req.Sampling.MaxTokens,
		},
		Version: CurrentCanonicalVersion,
	}, nil
}

// BuildIdemKey hashes a canonical payload. Struct fields marshal in
// declaration order, so the encoding is deterministic.
func BuildIdemKey(payload *CanonicalPayload) (IdemKey, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return IdemKey(hex.EncodeToString(sum[:])), nil
}

// GenerateIdemKey builds the canonical payload of req and hashes it.
func GenerateIdemKey(req *Request) (IdemKey, error) {
	payload, err := BuildCanonicalPayload(req)
	if err != nil {
		return "", fmt.Errorf("failed to build canonical payload: %w", err)
	}
	return BuildIdemKey(payload)
}

// CacheKey constructs the complete Redis cache key in the form
// llm:{operation}:{idemkey}.
func CacheKey(operation OperationType, key IdemKey) string {
	return fmt.Sprintf("llm:%s:%s", operation, key)
}

// normalizeText trims, normalizes line endings, and collapses runs of spaces
// within each line so formatting variations hash identically.
func normalizeText(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
