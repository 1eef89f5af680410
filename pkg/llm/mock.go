package llm

import (
	"context"
	"sync"
)

// MockVisionClient is a configurable mock for testing vision analysis.
// Set the function fields to control behavior in tests.
type MockVisionClient struct {
	// AnalyzeImageFunc is called when AnalyzeImage is invoked.
	// If nil, returns an empty response and nil error.
	AnalyzeImageFunc func(ctx context.Context, image []byte, mediaType, prompt string) (string, error)

	// Model is returned by GetModel. Defaults to "mock-vision-model".
	Model string

	mu         sync.Mutex
	mediaTypes []string
	calls      int
}

// NewMockVisionClient creates a new mock with sensible defaults.
func NewMockVisionClient() *MockVisionClient {
	return &MockVisionClient{Model: "mock-vision-model"}
}

// AnalyzeImage implements VisionClient. Safe for concurrent use.
func (m *MockVisionClient) AnalyzeImage(ctx context.Context, image []byte, mediaType, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mediaTypes = append(m.mediaTypes, mediaType)
	m.mu.Unlock()

	if m.AnalyzeImageFunc != nil {
		return m.AnalyzeImageFunc(ctx, image, mediaType, prompt)
	}
	return "", nil
}

// GetModel implements VisionClient.
func (m *MockVisionClient) GetModel() string {
	if m.Model == "" {
		return "mock-vision-model"
	}
	return m.Model
}

// Calls returns the number of AnalyzeImage invocations.
func (m *MockVisionClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MediaTypes returns the media types passed to AnalyzeImage, in call order.
func (m *MockVisionClient) MediaTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.mediaTypes...)
}

// Reset clears call tracking.
func (m *MockVisionClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.mediaTypes = nil
}

// Ensure MockVisionClient implements VisionClient at compile time.
var _ VisionClient = (*MockVisionClient)(nil)
