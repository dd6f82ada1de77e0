package llm

import (
	"context"
	"sync"
)

var _ Provider = (*MockProvider)(nil)

// MockProvider is a scriptable Provider for tests. Respond, when set, computes the reply;
// otherwise Text and Err are returned for every call.
type MockProvider struct {
	Err       error
	Respond   func(req CompletionRequest) (string, error)
	NameValue string
	Text      string
	calls     []CompletionRequest
	ProfileV  Profile
	Local     bool
	Down      bool
	mu        sync.Mutex
}

// NewMockProvider creates an available mock with the given name and class.
func NewMockProvider(name string, class ModelClass, costTier int) *MockProvider {
	return &MockProvider{
		NameValue: name,
		ProfileV:  Profile{Class: class, CostTier: costTier, StructuredOutput: 2},
		Local:     class == ClassLocal,
	}
}

func (m *MockProvider) Name() string                     { return m.NameValue }
func (m *MockProvider) IsLocal() bool                    { return m.Local }
func (m *MockProvider) Profile() Profile                 { return m.ProfileV }
func (m *MockProvider) IsAvailable(context.Context) bool { return !m.Down }

// Complete records the request and replies.
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	respond := m.Respond
	text, err := m.Text, m.Err
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return CompletionResponse{}, ctxErr
	}
	if respond != nil {
		text, err = respond(req)
	}
	if err != nil {
		return CompletionResponse{}, err
	}
	return CompletionResponse{Text: text, OutputTokens: 1}, nil
}

// Calls returns the requests received so far.
func (m *MockProvider) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// MockEngine is an in-memory Engine.
type MockEngine struct {
	LoadErr     error
	CompleteErr error
	Panic       any
	Text        string
	loaded      string
	loads       []string
	mu          sync.Mutex
}

// LoadModel records the load, replacing any loaded model.
func (e *MockEngine) LoadModel(_ context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.loaded = path
	e.loads = append(e.loads, path)
	return nil
}

func (e *MockEngine) IsModelLoaded() bool { return e.LoadedModel() != "" }

func (e *MockEngine) LoadedModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *MockEngine) UnloadModel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = ""
}

// Loads returns every path passed to a successful LoadModel.
func (e *MockEngine) Loads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

// Complete returns Text, CompleteErr, or panics with Panic.
func (e *MockEngine) Complete(_ context.Context, _ EngineRequest) (CompletionResponse, error) {
	if e.Panic != nil {
		panic(e.Panic)
	}
	if e.CompleteErr != nil {
		return CompletionResponse{}, e.CompleteErr
	}
	return CompletionResponse{Text: e.Text, OutputTokens: 4}, nil
}
