// Package testutil provides common test utilities and helpers for BotWeave tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BotWeave/BotWeave/internal/api"
	"github.com/BotWeave/BotWeave/internal/flow"
	"github.com/BotWeave/BotWeave/internal/messaging"
	"github.com/BotWeave/BotWeave/internal/store"
	"github.com/BotWeave/BotWeave/internal/whatsapp"
)

// TestServer bundles a test API server with its in-memory dependencies so
// tests can drive HTTP endpoints and inspect what was stored and sent.
type TestServer struct {
	Server     *api.Server
	Store      *store.InMemoryStore
	Client     *whatsapp.MockClient
	Handler    *flow.Handler
	Dispatcher *messaging.Dispatcher
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer() *TestServer {
	st := store.NewInMemoryStore()
	client := whatsapp.NewMockClient()
	msgService := messaging.NewWhatsAppService(client)
	resolver := flow.NewTriggerResolver(st)
	definitions := flow.NewCachingDefinitionProvider(st)
	handler := flow.NewHandler(st, resolver, definitions, msgService)
	dispatcher := messaging.NewDispatcher(handler)

	return &TestServer{
		Server:     api.NewServer(st, handler, dispatcher, msgService, nil),
		Store:      st,
		Client:     client,
		Handler:    handler,
		Dispatcher: dispatcher,
	}
}

// Close stops the background workers the test server started.
func (ts *TestServer) Close() {
	ts.Dispatcher.Stop()
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
