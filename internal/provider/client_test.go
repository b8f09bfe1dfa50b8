package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberguard/cyberguard/internal/metrics"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRateLimit(0)}, opts...)
	return NewClient(srv.URL, opts...)
}

func TestDomains(t *testing.T) {
	t.Run("hydra envelope", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/domains", r.URL.Path)
			assert.Equal(t, "application/ld+json", r.Header.Get("Accept"))
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"hydra:member":[{"id":"d1","domain":"example.test","isActive":true}],"hydra:totalItems":1}`)
		})

		got, err := c.Domains(context.Background())
		require.NoError(t, err)
		require.True(t, got.Present)
		require.Len(t, got.Members, 1)
		assert.Equal(t, "example.test", got.Members[0].Domain)
		assert.True(t, got.Members[0].Active())
		assert.Equal(t, 1, got.TotalItems)
	})

	t.Run("bare array", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[{"domain":"a.test"},{"domain":"b.test","isActive":false}]`)
		})

		got, err := c.Domains(context.Background())
		require.NoError(t, err)
		require.Len(t, got.Members, 2)
		assert.True(t, got.Members[0].Active())
		assert.False(t, got.Members[1].Active())
	})

	t.Run("missing member list", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})

		got, err := c.Domains(context.Background())
		require.NoError(t, err)
		assert.False(t, got.Present)
		assert.Empty(t, got.Members)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>oops</html>`)
		})

		_, err := c.Domains(context.Background())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestCreateAccountAndToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var creds Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "abc@example.test", creds.Address)
		assert.Equal(t, "secret", creds.Password)

		switch r.URL.Path {
		case "/accounts":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"acc1","address":"abc@example.test"}`)
		case "/token":
			_, _ = io.WriteString(w, `{"id":"acc1","token":"tok"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	creds := Credentials{Address: "abc@example.test", Password: "secret"}

	acct, err := c.CreateAccount(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "acc1", acct.ID)

	tok, err := c.Token(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.Token)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"hydra:title":"An error occurred","hydra:description":"address: This value is already used.","violations":[{"propertyPath":"address","message":"This value is already used."}]}`)
	})

	_, err := c.CreateAccount(context.Background(), Credentials{Address: "x@y.test", Password: "p"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
	assert.Contains(t, se.Detail(), "already used")
	assert.Contains(t, err.Error(), "/accounts")
}

func TestStatusErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		err  *StatusError
		want string
	}{
		{
			name: "plain message",
			err:  &StatusError{StatusCode: 401, Body: []byte(`{"code":401,"message":"Invalid credentials."}`)},
			want: "Invalid credentials.",
		},
		{
			name: "title only",
			err:  &StatusError{StatusCode: 400, Body: []byte(`{"hydra:title":"Bad Request"}`)},
			want: "Bad Request",
		},
		{
			name: "raw body",
			err:  &StatusError{StatusCode: 502, Body: []byte("upstream down")},
			want: "upstream down",
		},
		{
			name: "empty body",
			err:  &StatusError{StatusCode: 404},
			want: "Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Detail())
		})
	}
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
}

func TestRetryOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"hydra:member":[]}`)
	})

	got, err := c.Messages(context.Background(), "tok", 1)
	require.NoError(t, err)
	assert.True(t, got.Present)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithMaxRetries(1))

	_, err := c.Messages(context.Background(), "tok", 1)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"hydra:member":[{"id":"m1","from":{"address":"x@y.com","name":"X"},"subject":"Hi","seen":true,"createdAt":"2024-01-01T00:00:00Z","intro":"hello"}]}`)
	}, WithMetrics(m))

	got, err := c.Messages(context.Background(), "tok", 2)
	require.NoError(t, err)
	require.Len(t, got.Members, 1)

	msg := got.Members[0]
	assert.Equal(t, "m1", msg.ID)
	require.NotNil(t, msg.From)
	assert.Equal(t, "x@y.com", msg.From.Address)
	assert.True(t, msg.Seen)
	assert.Equal(t, "hello", msg.Intro)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("GET", "/messages", "200")))
}

func TestMessageOperations(t *testing.T) {
	type call struct {
		method, path, contentType, body string
	}
	var (
		mu    sync.Mutex
		calls []call
	)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/messages/m1":
			_, _ = io.WriteString(w, `{"id":"m1","subject":"Hi","text":"body","html":["<p>body</p>"],"attachments":[{"filename":"a.txt","contentType":"text/plain","size":4}]}`)
		case r.Method == http.MethodGet && r.URL.Path == "/sources/m1":
			_, _ = io.WriteString(w, `{"id":"m1","data":"Subject: Hi\r\n\r\nbody"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/me":
			_, _ = io.WriteString(w, `{"id":"acc1","address":"abc@example.test"}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	ctx := context.Background()

	detail, err := c.Message(ctx, "tok", "m1")
	require.NoError(t, err)
	assert.Equal(t, "body", detail.Text)
	assert.Equal(t, []string{"<p>body</p>"}, detail.HTML)
	require.Len(t, detail.Attachments, 1)
	assert.Equal(t, "a.txt", detail.Attachments[0].Filename)

	src, err := c.Source(ctx, "tok", "m1")
	require.NoError(t, err)
	assert.Contains(t, src.Data, "Subject: Hi")

	me, err := c.Me(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "acc1", me.ID)

	require.NoError(t, c.MarkSeen(ctx, "tok", "m1"))
	require.NoError(t, c.DeleteMessage(ctx, "tok", "m1"))
	require.NoError(t, c.DeleteAccount(ctx, "tok", "acc1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 6)
	assert.Equal(t, call{http.MethodPatch, "/messages/m1", "application/merge-patch+json", `{"seen":true}`}, calls[3])
	assert.Equal(t, http.MethodDelete, calls[4].method)
	assert.Equal(t, "/accounts/acc1", calls[5].path)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithRateLimit(0), WithTimeout(time.Second))
	_, err := c.Domains(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}, WithRateLimit(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Domains(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
