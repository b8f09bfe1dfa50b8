package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberguard/cyberguard/internal/model"
)

// exchange appends one question and its answer.
func exchange(h *History, n int) {
	h.Add(
		Turn{Role: RoleUser, Text: fmt.Sprintf("q%d", n)},
		Turn{Role: RoleModel, Text: fmt.Sprintf("a%d", n)},
	)
}

func texts(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}

func TestHistoryTrimKeepsFirstExchange(t *testing.T) {
	h := NewHistory(6)
	for i := 0; i < 5; i++ {
		exchange(h, i)
	}

	assert.Equal(t, []string{"q0", "a0", "q3", "a3", "q4", "a4"}, texts(h.Turns()))
}

func TestHistoryLimits(t *testing.T) {
	t.Run("one exchange keeps the latest", func(t *testing.T) {
		h := NewHistory(1)
		for i := 0; i < 3; i++ {
			exchange(h, i)
		}
		assert.Equal(t, []string{"q2", "a2"}, texts(h.Turns()))
	})

	t.Run("odd limit rounds up", func(t *testing.T) {
		h := NewHistory(5)
		for i := 0; i < 4; i++ {
			exchange(h, i)
		}
		assert.Equal(t, []string{"q0", "a0", "q2", "a2", "q3", "a3"}, texts(h.Turns()))
	})

	t.Run("non-positive uses default", func(t *testing.T) {
		h := NewHistory(0)
		for i := 0; i < DefaultMaxTurns; i++ {
			exchange(h, i)
		}
		assert.Equal(t, DefaultMaxTurns, h.Len())
	})

	t.Run("single turns are trimmed in pairs", func(t *testing.T) {
		h := NewHistory(4)
		for i := 0; i < 5; i++ {
			h.Add(Turn{Role: RoleUser, Text: fmt.Sprintf("t%d", i)})
		}
		assert.Equal(t, []string{"t0", "t1", "t4"}, texts(h.Turns()))
	})

	t.Run("reset", func(t *testing.T) {
		h := NewHistory(4)
		h.Add(Turn{Role: RoleUser, Text: "x"})
		h.Reset()
		assert.Equal(t, 0, h.Len())
		assert.Empty(t, h.Turns())
	})
}

// fakeGemini serves generateContent and records the decoded requests.
type fakeGemini struct {
	mu       sync.Mutex
	requests []apiRequest
	keys     []string
	paths    []string
	status   int
	body     string
}

func (f *fakeGemini) handler(w http.ResponseWriter, r *http.Request) {
	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, r.URL.Query().Get("key"))
	f.paths = append(f.paths, r.URL.Path)
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeGemini) last() apiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, f *fakeGemini) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	return New(model.ChatConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, "secret", nil)
}

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Use a password manager."}]},"finishReason":"STOP"}]}`

func TestGenerateSendsConversation(t *testing.T) {
	f := &fakeGemini{body: okBody}
	c := newTestClient(t, f)
	h := NewHistory(10)

	answer, err := c.Generate(context.Background(), h, "  How do I store passwords?  ")
	require.NoError(t, err)
	assert.Equal(t, "Use a password manager.", answer)

	req := f.last()
	f.mu.Lock()
	assert.Equal(t, "/models/test-model:generateContent", f.paths[0])
	assert.Equal(t, "secret", f.keys[0])
	f.mu.Unlock()
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "How do I store passwords?", req.Contents[0].Parts[0].Text)
	require.NotNil(t, req.SystemInstruction)
	assert.Contains(t, req.SystemInstruction.Parts[0].Text, "paragraph form")
	assert.Len(t, req.SafetySettings, 4)
	assert.Equal(t, 0.7, req.GenerationConfig.Temperature)
	assert.Equal(t, 0.95, req.GenerationConfig.TopP)
	assert.Equal(t, 40, req.GenerationConfig.TopK)

	turns := h.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "How do I store passwords?"}, turns[0])
	assert.Equal(t, Turn{Role: RoleModel, Text: "Use a password manager."}, turns[1])

	_, err = c.Generate(context.Background(), h, "And for teams?")
	require.NoError(t, err)

	req = f.last()
	require.Len(t, req.Contents, 3)
	assert.Equal(t, []string{"user", "model", "user"},
		[]string{req.Contents[0].Role, req.Contents[1].Role, req.Contents[2].Role})
	assert.Equal(t, 4, h.Len())
}

func TestGenerateErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		f := &fakeGemini{
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`,
		}
		c := newTestClient(t, f)
		h := NewHistory(10)

		_, err := c.Generate(context.Background(), h, "hello")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "API key not valid", apiErr.Message)
		assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
		assert.Equal(t, 0, h.Len())
	})

	t.Run("no candidates", func(t *testing.T) {
		f := &fakeGemini{body: `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`}
		c := newTestClient(t, f)

		_, err := c.Generate(context.Background(), nil, "hello")
		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.Contains(t, err.Error(), "SAFETY")
	})

	t.Run("empty question", func(t *testing.T) {
		c := New(model.ChatConfig{}, "secret", nil)
		_, err := c.Generate(context.Background(), nil, "   ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("missing key", func(t *testing.T) {
		c := New(model.ChatConfig{}, "", nil)
		_, err := c.Generate(context.Background(), nil, "hello")
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})
}

func TestReplyFallsBack(t *testing.T) {
	f := &fakeGemini{status: http.StatusInternalServerError, body: "oops"}
	c := newTestClient(t, f)
	h := NewHistory(10)

	assert.Equal(t, FallbackReply, c.Reply(context.Background(), h, "hello"))
	assert.Equal(t, 0, h.Len())

	f.mu.Lock()
	f.status, f.body = 0, okBody
	f.mu.Unlock()
	assert.Equal(t, "Use a password manager.", c.Reply(context.Background(), h, "hello"))
}

func TestResolveAPIKey(t *testing.T) {
	lookupCalls := 0
	lookup := func(key string) (string, error) {
		lookupCalls++
		assert.Equal(t, KeyringAPIKey, key)
		return " from-keyring ", nil
	}

	key, err := ResolveAPIKey(model.ChatConfig{APIKey: "from-config"}, lookup)
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)
	assert.Equal(t, 0, lookupCalls)

	key, err = ResolveAPIKey(model.ChatConfig{}, lookup)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", key)

	_, err = ResolveAPIKey(model.ChatConfig{}, func(string) (string, error) {
		return "", errors.New("no keyring")
	})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGenerateKeepsRolesAlternating(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5, 6} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			f := &fakeGemini{body: okBody}
			c := newTestClient(t, f)
			h := NewHistory(limit)

			for i := 0; i < 4; i++ {
				_, err := c.Generate(context.Background(), h, fmt.Sprintf("question %d", i))
				require.NoError(t, err)

				contents := f.last().Contents
				require.NotEmpty(t, contents)
				for j, content := range contents {
					want := "user"
					if j%2 == 1 {
						want = "model"
					}
					assert.Equal(t, want, content.Role, "request %d, content %d", i, j)
				}
				assert.Equal(t, "user", contents[len(contents)-1].Role)
			}
		})
	}
}
