// Package clientid mints and reads the opaque client identity cookie that
// lets a reconnecting browser session keep its place in a game's hub.
package clientid

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// CookieName is the cookie that carries a client's opaque identity.
const CookieName = "clientID"

// CookieMaxAge is set on every upgrade response, new ID or reused, so the
// browser keeps the cookie effectively forever (spec: "Max-Age=3153600000").
const CookieMaxAge = 3153600000

// ClientIDFromCookies returns the value of the clientID cookie, or the empty
// string if it isn't present.
func ClientIDFromCookies(cookies []*http.Cookie) string {
	for _, cookie := range cookies {
		if cookie.Name == CookieName {
			return cookie.Value
		}
	}
	return ""
}

// NewClientID returns a fresh, unique opaque ID: unix seconds plus a random
// 31-bit integer. Not cryptographically unguessable, and doesn't need to be:
// it is a reconnection token bound to a cookie jar, not a credential.
func NewClientID() string {
	return fmt.Sprintf("%d.%d", time.Now().Unix(), rand.Int31())
}

// ClientIDOrNew returns the existing clientID cookie value, or mints a new
// one if the cookie jar has none.
func ClientIDOrNew(cookies []*http.Cookie) string {
	if id := ClientIDFromCookies(cookies); id != "" {
		return id
	}
	return NewClientID()
}

// SetCookie writes the Set-Cookie header every upgrade response must carry,
// whether id was reused or freshly minted.
func SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:   CookieName,
		Value:  id,
		Path:   "/",
		MaxAge: CookieMaxAge,
	})
}
