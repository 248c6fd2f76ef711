package testutil

import (
	"io"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestNewJSONRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"nil", nil, ""},
		{"raw string", `{"model":`, `{"model":`},
		{"encoded", map[string]int{"n_r": 20}, `{"n_r":20}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewJSONRequest(t, http.MethodPost, "/api/simulate", tt.body)
			if req.Method != http.MethodPost || req.URL.Path != "/api/simulate" {
				t.Errorf("request = %s %s", req.Method, req.URL.Path)
			}
			if ct := req.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %q", ct)
			}
			b, err := io.ReadAll(req.Body)
			AssertNoError(t, err)
			if string(b) != tt.want {
				t.Errorf("body = %q, want %q", b, tt.want)
			}
		})
	}
}

func TestServeAndDecode(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, `{"kappa":3}`)
	})
	rec := Serve(h, NewJSONRequest(t, http.MethodGet, "/", nil))
	AssertStatusCode(t, rec.Code, http.StatusTeapot)

	var got map[string]float64
	DecodeJSON(t, rec, &got)
	if got["kappa"] != 3 {
		t.Errorf("kappa = %v, want 3", got["kappa"])
	}
}
