package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoResponse is returned by MockClient when its script is exhausted.
var ErrNoResponse = errors.New("mock: no scripted response")

// Response is one scripted MockClient reply.
type Response struct {
	Text string
	Err  error
}

// MockClient replays scripted responses in order and records every request.
// When Fallback is set it answers once the script runs out.
type MockClient struct {
	Fallback func(req *Request) (string, error)

	mu        sync.Mutex
	responses []Response
	requests  []*Request
}

// NewMockClient returns a client that replays responses in order.
func NewMockClient(responses ...Response) *MockClient {
	return &MockClient{responses: responses}
}

// Reply is shorthand for a successful scripted response.
func Reply(text string) Response {
	return Response{Text: text}
}

// Fail is shorthand for a failing scripted response.
func Fail(err error) Response {
	return Response{Err: err}
}

// Provider returns "mock".
func (m *MockClient) Provider() string { return "mock" }

// Model returns "mock".
func (m *MockClient) Model() string { return "mock" }

// Generate pops the next scripted response.
func (m *MockClient) Generate(ctx context.Context, req *Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		fallback := m.Fallback
		m.mu.Unlock()
		if fallback != nil {
			return fallback(req)
		}
		return "", ErrNoResponse
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

// Push appends responses to the script.
func (m *MockClient) Push(responses ...Response) {
	m.mu.Lock()
	m.responses = append(m.responses, responses...)
	m.mu.Unlock()
}

// Requests returns a copy of the recorded requests.
func (m *MockClient) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// PromptText joins the text parts of a request.
func PromptText(req *Request) string {
	texts := make([]string, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}
