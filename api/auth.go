package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireOperator rejects requests without the operator bearer token.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			s.writeError(w, http.StatusForbidden, "operator routes are disabled")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid operator token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
