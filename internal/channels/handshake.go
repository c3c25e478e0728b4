package channels

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidSignature is returned when a webhook body fails verification.
var ErrInvalidSignature = errors.New("channels: invalid webhook signature")

// HandshakeHandler answers the one-time GET subscription challenge by echoing
// hub.challenge when hub.verify_token matches.
func HandshakeHandler(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if verifyToken != "" && mode == "subscribe" && token == verifyToken {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, challenge)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}
