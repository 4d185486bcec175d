package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxJSONBody bounds request bodies read by decodeJSON.
const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// jsonResponse writes data as JSON with the given status code. The body is
// encoded before anything is written, so an encoding failure still produces
// a clean 500. Responses are not cached unless the handler says otherwise.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	if data == nil {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// jsonError writes {"error": message}.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// decodeJSON decodes the request body into target, rejecting unknown fields
// and bodies over maxJSONBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
