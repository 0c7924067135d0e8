package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPGatewayValidation(t *testing.T) {
	_, err := NewHTTPGateway(HTTPGatewayOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "base URL required")
}

func TestHTTPGatewaySubmit(t *testing.T) {
	var received SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/runs", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(SubmitAck{
			RunID:    received.RunID,
			Accepted: true,
			Message:  "queued",
		})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(HTTPGatewayOptions{
		BaseURL:   server.URL + "/api/v1/",
		AuthToken: "secret-token",
	})
	require.NoError(t, err)

	ack, err := gateway.Submit(context.Background(), SubmitRequest{
		RunID:      "run_1",
		GraphID:    "g-1",
		FormInputs: map[string]any{"topic": "go"},
	})
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	require.Equal(t, "queued", ack.Message)
	require.Equal(t, "run_1", received.RunID)
	require.Equal(t, "go", received.FormInputs["topic"])
}

func TestHTTPGatewaySubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "graph not deployable", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = gateway.Submit(context.Background(), SubmitRequest{RunID: "run_1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
	require.Contains(t, err.Error(), "graph not deployable")
}

func TestHTTPGatewayFetchResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/runs/run_1/results", r.URL.Path)

		json.NewEncoder(w).Encode(ResultBatch{Results: []*NodeResult{
			{NodeID: "a", Type: NodeTypeStart, Outputs: map[string]any{"topic": "go"}},
			{NodeID: "b", Type: NodeTypeEnd},
		}})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	require.NoError(t, err)

	batch, err := gateway.FetchResults(context.Background(), "run_1")
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())
	require.True(t, batch.EndsRun())
	require.Equal(t, "go", batch.Results[0].Outputs["topic"])
}

func TestHTTPGatewayFetchEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	require.NoError(t, err)

	batch, err := gateway.FetchResults(context.Background(), "run_1")
	require.NoError(t, err)
	require.Equal(t, 0, batch.Len())
	require.False(t, batch.EndsRun())
}

func TestHTTPGatewayRequiresRunID(t *testing.T) {
	gateway, err := NewHTTPGateway(HTTPGatewayOptions{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = gateway.Submit(context.Background(), SubmitRequest{})
	require.Error(t, err)
	_, err = gateway.FetchResults(context.Background(), "")
	require.Error(t, err)
}

func TestHTTPGatewayServerErrorIsRecoverablePattern(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try again shortly", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = gateway.FetchResults(context.Background(), "run_1")
	require.Error(t, err)
	// The status text carries through so the retry heuristics can match it
	require.Contains(t, err.Error(), "Service Unavailable")
}
