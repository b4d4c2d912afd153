package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response", StopReason: StopReasonEnd}, nil
}

// Script returns a CompleteFunc that replays the given responses in order
// and repeats the last one once exhausted. The requests it receives are
// appended to *seen when seen is non-nil.
func Script(seen *[]CompletionRequest, responses ...*CompletionResponse) func(context.Context, CompletionRequest) (*CompletionResponse, error) {
	i := 0
	return func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
		if seen != nil {
			*seen = append(*seen, req)
		}
		resp := responses[len(responses)-1]
		if i < len(responses) {
			resp = responses[i]
		}
		i++
		cp := *resp
		return &cp, nil
	}
}
