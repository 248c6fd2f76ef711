package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)
	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("expected nil to wrap http.DefaultClient")
	}
}

func TestPostJSON_Success(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"kappa": 3}`)

	var out struct {
		Kappa float64 `json:"kappa"`
	}
	err := PostJSON(context.Background(), mock, "http://example.com/api/simulate", map[string]string{"model": "parallel"}, &out)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Kappa != 3 {
		t.Errorf("kappa = %v, want 3", out.Kappa)
	}

	if mock.RequestCount() != 1 {
		t.Fatalf("got %d requests, want 1", mock.RequestCount())
	}
	req := mock.Requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s", ct)
	}
	var sent map[string]string
	if err := json.Unmarshal(mock.Bodies[0], &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["model"] != "parallel" {
		t.Errorf("sent model = %q", sent["model"])
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusConflict, `{"error": "superseded"}`)
	mock.AddResponse(http.StatusBadGateway, `<html>`)

	err := PostJSON(context.Background(), mock, "http://example.com", struct{}{}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusConflict || se.Message != "superseded" {
		t.Errorf("got %+v", se)
	}
	if se.Error() != "server returned 409: superseded" {
		t.Errorf("Error() = %q", se.Error())
	}

	err = PostJSON(context.Background(), mock, "http://example.com", struct{}{}, nil)
	if !errors.As(err, &se) || se.Message != "" {
		t.Fatalf("err = %v, want bare *StatusError", err)
	}
	if se.Error() != "server returned 502 Bad Gateway" {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestPostJSON_TransportError(t *testing.T) {
	mock := NewMockHTTPClient()
	want := errors.New("connection refused")
	mock.AddErrorResponse(want)

	if err := PostJSON(context.Background(), mock, "http://example.com", struct{}{}, nil); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestPostJSON_BadResponseBody(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `not json`)

	var out map[string]any
	if err := PostJSON(context.Background(), mock, "http://example.com", struct{}{}, &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestPostJSON_StandardClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]int
		if err := DecodeJSON(w, r, &in); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSONOK(w, map[string]int{"n": in["n"] * 2})
	}))
	defer srv.Close()

	var out map[string]int
	if err := PostJSON(context.Background(), NewStandardClient(srv.Client()), srv.URL, map[string]int{"n": 21}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out["n"] != 42 {
		t.Errorf("n = %d, want 42", out["n"])
	}
}
