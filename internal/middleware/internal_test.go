package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name   string
		secret string
		sent   string
		want   int
	}{
		{"matching token", "hook", "hook", http.StatusNoContent},
		{"wrong token", "hook", "nope", http.StatusUnauthorized},
		{"missing token", "hook", "", http.StatusUnauthorized},
		{"disabled", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/matches", nil)
			if tc.sent != "" {
				req.Header.Set(InternalTokenHeader, tc.sent)
			}
			rec := httptest.NewRecorder()
			InternalOnly(tc.secret)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
