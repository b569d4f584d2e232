package webutil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

const (
	HeaderContentType = "Content-Type"

	ContentTypeJSONUTF8      = "application/json; charset=utf-8"
	ContentTypeTextPlainUTF8 = "text/plain; charset=utf-8"
)

// ErrorBody is the JSON shape of every operator API error.
type ErrorBody struct {
	Error string `json:"error"`
}

// StatusBody acknowledges a command that runs asynchronously, such as a tick.
type StatusBody struct {
	Status string `json:"status"`
}

// marshalFailureBody is written verbatim when a payload cannot be encoded.
const marshalFailureBody = `{"error":"` + msgInternalServer + `"}`

func RespondWithError(w http.ResponseWriter, status int, message string) {
	RespondWithJSON(w, status, ErrorBody{Error: message})
}

// RespondWithJSON encodes payload and writes it with status. A payload that
// cannot be encoded turns into a 500 and is logged on the global zap logger.
func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("Failed to encode JSON response",
			zap.String("payload_type", fmt.Sprintf("%T", payload)),
			zap.Int("intended_status", status),
			zap.Error(err),
		)
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(marshalFailureBody))
		return
	}
	if w.Header().Get(HeaderContentType) == "" {
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// RespondWithText writes a plain-text body, used by the /healthz check.
func RespondWithText(w http.ResponseWriter, status int, text string) {
	w.Header().Set(HeaderContentType, ContentTypeTextPlainUTF8)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
