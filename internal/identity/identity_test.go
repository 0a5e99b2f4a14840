package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), "alice")
	if got := UserID(ctx); got != "alice" {
		t.Errorf("UserID = %q, want %q", got, "alice")
	}
	if got := UserID(context.Background()); got != "" {
		t.Errorf("UserID(empty) = %q, want empty", got)
	}
}

func TestIssueAndParseToken(t *testing.T) {
	token, expiresAt, err := IssueToken("alice", "secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiresAt = %v, want ~1h from now", expiresAt)
	}

	sub, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if sub != "alice" {
		t.Errorf("subject = %q, want %q", sub, "alice")
	}

	if _, err := ParseToken(token, "other"); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestIssueToken_Expired(t *testing.T) {
	token, _, err := IssueToken("alice", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(token, "secret"); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, _, err := IssueToken("", "secret", time.Hour); err == nil {
		t.Error("expected error for empty user")
	}
	if _, _, err := IssueToken("alice", "", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestMiddleware(t *testing.T) {
	token, _, err := IssueToken("bob", "secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "bob"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"missing bearer", token, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			router := gin.New()
			router.Use(Middleware("secret"))
			router.GET("/me", func(c *gin.Context) {
				seen = UserID(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if seen != tt.wantUser {
				t.Errorf("user = %q, want %q", seen, tt.wantUser)
			}
		})
	}
}
