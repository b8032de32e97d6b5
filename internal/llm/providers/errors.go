package providers

import (
	"errors"
)

// Provider adapter errors.
var (
	// ErrUnsupportedOperation indicates an operation the adapter cannot build.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrNoModelsEndpoint indicates that neither model listing route answered.
	ErrNoModelsEndpoint = errors.New("model listing not supported by endpoint")
)

// ProviderOpenAI is the canonical name of the OpenAI-compatible adapter.
const ProviderOpenAI = "openai"
