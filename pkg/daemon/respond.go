package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/hack-dev/hack/pkg/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeAppErr maps a tagged apperr.Error (or any error) to its HTTP status
// and a stable short code, following the apperr taxonomy.
func writeAppErr(w http.ResponseWriter, err error) {
	if ae, ok := apperr.As(err); ok {
		writeError(w, apperr.StatusCode(ae.Kind), ae.Code, ae.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
