package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "not a url", "/api/analyze"} {
		_, err := NewClient(endpoint, nil)
		require.Error(t, err, endpoint)
	}
}

func TestClient_Analyze(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"q":"What is Go?","a":"A language."},{"q":"Who?","a":"Google."}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	cards, err := c.Analyze(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"url": "https://example.com/post"}, got)
	require.Equal(t, []Card{
		{Q: "What is Go?", A: "A language."},
		{Q: "Who?", A: "Google."},
	}, cards)
}

func TestClient_AnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "non 200", status: http.StatusInternalServerError, body: "boom", wantErr: "HTTP 500: boom"},
		{name: "bad json", status: http.StatusOK, body: "{", wantErr: "failed to decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL, srv.Client())
			require.NoError(t, err)

			_, err = c.Analyze(context.Background(), "https://example.com")
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClient_AnalyzeEmptyURLMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyURL)
	require.Zero(t, hits.Load())
}

type fakeAnalyzer struct {
	cards []Card
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, articleURL string) ([]Card, error) {
	f.calls++
	return f.cards, f.err
}

func TestWorkflow_Submit(t *testing.T) {
	previous := []Card{{Q: "old", A: "old"}}

	t.Run("empty url makes no call and changes nothing", func(t *testing.T) {
		a := &fakeAnalyzer{}
		w := &Workflow{Results: previous}

		err := w.Submit(context.Background(), a)
		require.ErrorIs(t, err, ErrEmptyURL)
		require.Zero(t, a.calls)
		require.Equal(t, previous, w.Results)
		require.False(t, w.ShowCards)
		require.False(t, w.Loading)
	})

	t.Run("success replaces results and shows cards", func(t *testing.T) {
		fresh := []Card{{Q: "q1", A: "a1"}, {Q: "q2", A: "a2"}}
		a := &fakeAnalyzer{cards: fresh}
		w := &Workflow{URL: "https://example.com", Results: previous}

		require.NoError(t, w.Submit(context.Background(), a))
		require.Equal(t, 1, a.calls)
		require.Equal(t, fresh, w.Results)
		require.True(t, w.ShowCards)
		require.False(t, w.Loading)
	})

	t.Run("failure leaves results and clears loading", func(t *testing.T) {
		a := &fakeAnalyzer{err: errors.New("upstream down")}
		w := &Workflow{URL: "https://example.com", Results: previous, ShowCards: true}

		require.Error(t, w.Submit(context.Background(), a))
		require.Equal(t, previous, w.Results)
		require.True(t, w.ShowCards)
		require.False(t, w.Loading)
	})
}
