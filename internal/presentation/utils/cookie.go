package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
)

// SetSessionCookie stores a verified token so browser WebSocket upgrades,
// which cannot carry an Authorization header, still authenticate.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/api",
		HttpOnly: true,
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/api",
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func FormatProjectPath(projectID string) string {
	return fmt.Sprintf("/api/projects/%s", url.PathEscape(projectID))
}
