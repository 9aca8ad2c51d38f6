// Package auth resolves the identity behind a session cookie issued by the
// request/response layer.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// signedPrefix marks a signed value in cookies written by the session layer.
const signedPrefix = "s:"

// SignSessionID returns the signed cookie value for a session id.
func SignSessionID(secret []byte, sid string) string {
	return signedPrefix + sid + "." + sign(secret, sid)
}

// ParseSessionCookie verifies a signed cookie value and returns the session
// id it carries. The value may be URL-escaped and the "s:" prefix is
// optional.
func ParseSessionCookie(secret []byte, value string) (string, error) {
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	value = strings.TrimPrefix(value, signedPrefix)

	dot := strings.LastIndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return "", ErrInvalidToken
	}
	sid, signature := value[:dot], value[dot+1:]
	if !hmac.Equal([]byte(signature), []byte(sign(secret, sid))) {
		return "", ErrInvalidToken
	}
	return sid, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawStdEncoding.EncodeToString(sum.Sum(nil))
}
