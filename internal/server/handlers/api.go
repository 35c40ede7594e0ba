package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
	"github.com/leeyeon3724/civic-archive-api/internal/security/token"
)

// EchoResponse wraps the JSON document the caller sent.
type EchoResponse struct {
	YouSent json.RawMessage `json:"you_sent"`
}

// WhoAmIResponse describes how the guards identified the caller.
type WhoAmIResponse struct {
	ClientKey string   `json:"client_key"`
	Subject   string   `json:"subject,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
}

// EchoHandler returns the request's JSON body. An empty body echoes {}.
func EchoHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if errors.Is(err, guard.ErrBodyTooLarge) {
			// The size guard replaces whatever is written here.
			return
		}
		apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unable to read request body"))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		apperrors.RespondWithError(w, r, apperrors.NewInvalidInputError("Request body must be valid JSON"))
		return
	}

	writeJSON(w, http.StatusOK, EchoResponse{YouSent: json.RawMessage(body)})
}

// WhoAmIHandler reports the resolved client key and token claims.
func WhoAmIHandler(w http.ResponseWriter, r *http.Request) {
	response := WhoAmIResponse{
		ClientKey: guard.ClientKeyFromContext(r.Context()),
	}
	if claims, ok := token.ClaimsFromContext(r.Context()); ok {
		response.Subject = claims.Subject
		response.Scopes = claims.Scopes
	}
	writeJSON(w, http.StatusOK, response)
}
