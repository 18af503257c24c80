package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
	"github.com/markdave123-py/parley/internal/services"
)

type staticUsers map[string]*models.User

func (s staticUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFrom(r.Context())
	_, _ = w.Write([]byte(id))
}

func TestJWTMiddleware(t *testing.T) {
	tokens := services.NewTokenService("secret", time.Hour)
	token, err := tokens.Issue(&models.User{ID: "u1", Role: models.RoleUser})
	assert.NoError(t, err)
	h := JWTMiddleware(tokens)(http.HandlerFunc(echoUser))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}

func TestRequireAdminReadsCurrentRole(t *testing.T) {
	users := staticUsers{
		"admin":  {ID: "admin", Role: models.RoleAdmin},
		"member": {ID: "member", Role: models.RoleUser},
	}
	h := RequireAdmin(users)(http.HandlerFunc(echoUser))

	for id, want := range map[string]int{"admin": http.StatusOK, "member": http.StatusForbidden, "ghost": http.StatusUnauthorized, "": http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), id))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, id)
	}
}
