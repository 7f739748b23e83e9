package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ParseQueryInt64 reads a required int64 query parameter.
// On failure it writes a 400 response and returns false.
func ParseQueryInt64(w http.ResponseWriter, r *http.Request, logger *slog.Logger, key string) (int64, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("%s url parameter is required", key))
		return 0, false
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return 0, false
	}
	return intValue, true
}
