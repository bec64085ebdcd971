package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/qguard/pkg/quality"
)

func newServer(t *testing.T, handler func(req generateRequest) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			status, body := handler(req)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func responseJSON(s string) string {
	b, _ := json.Marshal(generateResponse{Response: s, Done: true})
	return string(b)
}

func TestGenerate(t *testing.T) {
	var got generateRequest
	srv := newServer(t, func(req generateRequest) (int, string) {
		got = req
		return http.StatusOK, responseJSON("hello")
	})

	c := New(Config{URL: srv.URL + "/", Model: "tiny", Temperature: 0.2, MaxRetries: -1}, nil)
	out, err := c.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "tiny", got.Model)
	assert.Equal(t, "say hi", got.Prompt)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.2, got.Options.Temperature, 1e-9)
}

func TestGenerate_Empty(t *testing.T) {
	srv := newServer(t, func(generateRequest) (int, string) {
		return http.StatusOK, responseJSON("  \n")
	})
	_, err := New(Config{URL: srv.URL, MaxRetries: -1}, nil).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_ModelMissing(t *testing.T) {
	srv := newServer(t, func(generateRequest) (int, string) {
		return http.StatusNotFound, `{"error":"model not found"}`
	})
	_, err := New(Config{URL: srv.URL, MaxRetries: -1}, nil).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama generate")
	assert.Contains(t, err.Error(), "404")
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{}, nil)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultURL, c.baseURL)
}

func TestPing(t *testing.T) {
	srv := newServer(t, nil)
	assert.NoError(t, New(Config{URL: srv.URL, MaxRetries: -1}, nil).Ping(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer down.Close()
	assert.Error(t, New(Config{URL: down.URL, MaxRetries: -1}, nil).Ping(context.Background()))
}

func TestBuildPrompt(t *testing.T) {
	issues := []quality.Issue{
		{Line: 3, Message: "Line too long (130 > 120)"},
		{Message: "File too long"},
	}
	p := BuildPrompt("python", "x = 1\n", issues)

	assert.True(t, strings.HasPrefix(p, "Improve this python code by fixing the following issues:\n\n"))
	assert.Contains(t, p, "- line 3: Line too long (130 > 120)\n")
	assert.Contains(t, p, "- File too long\n")
	assert.Contains(t, p, "Current code:\n```python\nx = 1\n```\n")
	assert.True(t, strings.HasSuffix(p, "Improved code:\n```python\n"))
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "largest fenced block",
			in:   "Here:\n```python\nx = 1\n```\nand\n```python\ndef f():\n    return 2\n```\n",
			want: "def f():\n    return 2",
		},
		{
			name: "untagged fence",
			in:   "```\nprint(1)\n```",
			want: "print(1)",
		},
		{
			name: "continuation of open fence",
			in:   "def g():\n    pass\n```\nThat fixes it.",
			want: "def g():\n    pass",
		},
		{
			name: "unclosed leading fence",
			in:   "```python\nx = 1\n",
			want: "x = 1",
		},
		{
			name: "unclosed fence after blank lines",
			in:   "\n\n```go\nfunc f() {}\n\nfunc g() {}",
			want: "func f() {}\n\nfunc g() {}",
		},
		{
			name: "fence closed on the code line",
			in:   "```python\nx = 1```",
			want: "x = 1",
		},
		{
			name: "bare text drops markdown lines",
			in:   "# Improved\n* removed eval\n\nvalue = int(raw)\n",
			want: "value = int(raw)",
		},
		{
			name: "nothing",
			in:   "# heading only\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestReviser(t *testing.T) {
	var prompt string
	srv := newServer(t, func(req generateRequest) (int, string) {
		prompt = req.Prompt
		return http.StatusOK, responseJSON("x = int(y)\n```\n")
	})
	r := NewReviser(New(Config{URL: srv.URL, MaxRetries: -1}, nil), "python")

	out, err := r.Revise(context.Background(), "x = eval(y)", []quality.Issue{{Line: 1, Message: "Forbidden pattern found: eval("}})
	require.NoError(t, err)
	assert.Equal(t, "x = int(y)", out)
	assert.Contains(t, prompt, "eval(")
}

func TestReviser_NoCode(t *testing.T) {
	srv := newServer(t, func(generateRequest) (int, string) {
		return http.StatusOK, responseJSON("# sorry\n")
	})
	r := NewReviser(New(Config{URL: srv.URL, MaxRetries: -1}, nil), "python")
	_, err := r.Revise(context.Background(), "x", nil)
	assert.True(t, errors.Is(err, ErrNoCode))
}
