package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Rest and fluids.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{BaseURL: srv.URL + "/", APIKey: "k", Model: "sonar", Temperature: 0.3})
	out, err := c.Generate(context.Background(), Prompt("be careful", "what helps a cold?"))
	require.NoError(t, err)
	assert.Equal(t, "Rest and fluids.", out)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "sonar", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be careful", got.Messages[0].Content)
	assert.Equal(t, "what helps a cold?", got.Messages[1].Content)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	assert.Nil(t, got.ResponseFormat)
}

func TestOpenAIClient_Schema(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{BaseURL: srv.URL, Model: "m"})
	req := Prompt("", "x")
	req.Schema = &Schema{Type: TypeObject, Properties: map[string]*Schema{"a": {Type: TypeString}}}
	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	rf, ok := raw["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", rf["type"])
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{BaseURL: srv.URL, Model: "m"})
	_, err := c.Generate(context.Background(), Prompt("", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAIClient(OpenAIOptions{BaseURL: srv.URL}).Generate(context.Background(), Prompt("", "x"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOpenAIClient_UnsupportedParts(t *testing.T) {
	c := NewOpenAIClient(OpenAIOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Generate(context.Background(), &Request{Parts: []Part{File("/tmp/a.mp3", "audio/mpeg")}})
	assert.ErrorIs(t, err, ErrUnsupportedPart)

	_, err = c.Generate(context.Background(), &Request{Parts: []Part{Bytes([]byte{1}, "audio/wav")}})
	assert.ErrorIs(t, err, ErrUnsupportedPart)
}

func TestOpenAIClient_ImagePartsAsDataURL(t *testing.T) {
	c := NewOpenAIClient(OpenAIOptions{BaseURL: "http://unused"})
	content, err := c.userContent([]Part{Text("read this"), Bytes([]byte("img"), "image/png")})
	require.NoError(t, err)
	parts, ok := content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,aW1n", parts[1].ImageURL.URL)
}

func TestMockClient(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockClient(Reply("one"), Fail(boom))
	ctx := context.Background()

	out, err := m.Generate(ctx, Prompt("s", "first"))
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = m.Generate(ctx, Prompt("s", "second"))
	assert.ErrorIs(t, err, boom)

	_, err = m.Generate(ctx, Prompt("s", "third"))
	assert.ErrorIs(t, err, ErrNoResponse)

	m.Fallback = func(req *Request) (string, error) { return "echo " + PromptText(req), nil }
	out, err = m.Generate(ctx, Prompt("", "fourth"))
	require.NoError(t, err)
	assert.Equal(t, "echo fourth", out)

	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "second", PromptText(m.Requests()[1]))
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(&Schema{
		Type:     TypeObject,
		Required: []string{"flag"},
		Properties: map[string]*Schema{
			"flag":  {Type: TypeBoolean},
			"items": {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"flag"}, s.Required)
	assert.Equal(t, genai.TypeBoolean, s.Properties["flag"].Type)
	assert.Equal(t, genai.TypeArray, s.Properties["items"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["items"].Items.Type)
}

func TestNew(t *testing.T) {
	c, err := New(context.Background(), &config.LLMConfig{Provider: "openai", Model: "sonar", BaseURL: "https://api.perplexity.ai"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())
	assert.Equal(t, "sonar", c.Model())

	_, err = New(context.Background(), &config.LLMConfig{Provider: "openai"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), &config.LLMConfig{Provider: "claude"}, nil)
	assert.Error(t, err)
}
