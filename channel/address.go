package channel

import (
	"math/rand"
	"net/url"
	"strings"
)

const (
	clientIDLen = 9
	base36      = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewClientID returns a short random token identifying this client for the
// lifetime of the process. It is reused across reconnects.
func NewClientID() string {
	var b strings.Builder
	b.Grow(clientIDLen)
	for i := 0; i < clientIDLen; i++ {
		b.WriteByte(base36[rand.Intn(len(base36))])
	}
	return b.String()
}

// Address adds id to base as the id query parameter, keeping any other
// parameters (such as enc)
func Address(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
