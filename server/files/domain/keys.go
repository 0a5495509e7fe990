package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"s4/server/common/apperr"
)

// MaxKeyBytes matches the S3 object key limit.
const MaxKeyBytes = 1024

// ValidateKey accepts keys of the form "<owner>/<name>[/<more>...]".
func ValidateKey(key string) error {
	switch {
	case key == "":
		return apperr.InvalidInput.New("key is required")
	case len(key) > MaxKeyBytes:
		return apperr.InvalidInput.New("key exceeds %d bytes", MaxKeyBytes)
	case !utf8.ValidString(key):
		return apperr.InvalidInput.New("key is not valid UTF-8")
	case strings.HasPrefix(key, "/"):
		return apperr.InvalidInput.New("key must not start with /")
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return apperr.InvalidInput.New("key contains control characters")
		}
	}
	segments := strings.Split(key, "/")
	if len(segments) < 2 {
		return apperr.InvalidInput.New("key must be namespaced as <owner>/<name>")
	}
	for _, seg := range segments {
		switch seg {
		case "":
			return apperr.InvalidInput.New("key contains an empty path segment")
		case ".", "..":
			return apperr.InvalidInput.New("key contains a relative path segment")
		}
	}
	return nil
}

// OwnerOf returns the namespace owner of key, or "" if key has no namespace.
func OwnerOf(key string) string {
	owner, _, ok := strings.Cut(key, "/")
	if !ok {
		return ""
	}
	return owner
}

// InNamespace reports whether key lives under principal's prefix.
func InNamespace(key, principal string) bool {
	if principal == "" {
		return false
	}
	return OwnerOf(key) == principal
}
