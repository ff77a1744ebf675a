package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

type cookieSettings struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (c cookieSettings) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c cookieSettings) setSession(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, c.cookie(common.AccessTokenCookieName, pair.AccessToken, c.accessTTL))
	http.SetCookie(w, c.cookie(common.RefreshTokenCookieName, pair.RefreshToken, c.refreshTTL))
}

func (c cookieSettings) clearSession(w http.ResponseWriter) {
	for _, name := range []string{common.AccessTokenCookieName, common.RefreshTokenCookieName} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}
