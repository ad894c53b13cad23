// Package api provides HTTP response utilities for BotWeave.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BotWeave/BotWeave/internal/models"
)

// encodingFailure is the body served when a response value itself cannot be
// marshaled. Prepared at startup so the failure path never encodes.
var encodingFailure = mustMarshal(models.Error("response encoding failed"))

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("api: fallback response does not marshal: %v", err))
	}
	return data
}

// writeJSONResponse encodes response and writes it with the given status.
// Marshaling happens before any header is written, so an encoding error can
// still be reported as a 500 instead of a truncated body.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: marshal failed", "error", err)
		body = encodingFailure
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: write failed", "error", err)
	}
}
