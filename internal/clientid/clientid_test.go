package clientid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIDFromCookies_Present(t *testing.T) {
	cookies := []*http.Cookie{{Name: "other", Value: "x"}, {Name: CookieName, Value: "abc.123"}}
	assert.Equal(t, "abc.123", ClientIDFromCookies(cookies))
}

func TestClientIDFromCookies_Absent(t *testing.T) {
	assert.Equal(t, "", ClientIDFromCookies(nil))
}

func TestNewClientID_Format(t *testing.T) {
	id := NewClientID()
	parts := strings.SplitN(id, ".", 2)
	assert.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestNewClientID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewClientID()
		assert.False(t, seen[id], "collision generating client IDs")
		seen[id] = true
	}
}

func TestClientIDOrNew_ReusesExisting(t *testing.T) {
	cookies := []*http.Cookie{{Name: CookieName, Value: "existing.1"}}
	assert.Equal(t, "existing.1", ClientIDOrNew(cookies))
}

func TestClientIDOrNew_MintsNew(t *testing.T) {
	id := ClientIDOrNew(nil)
	assert.NotEmpty(t, id)
}

func TestClientIDOrNew_Idempotent(t *testing.T) {
	cookies := []*http.Cookie{{Name: CookieName, Value: "stable.1"}}
	assert.Equal(t, ClientIDOrNew(cookies), ClientIDOrNew(cookies))
}

func TestSetCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "some.id")

	resp := w.Result()
	cookies := resp.Cookies()
	assert.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "some.id", cookies[0].Value)
	assert.Equal(t, CookieMaxAge, cookies[0].MaxAge)
}
