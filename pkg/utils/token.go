package utils

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// RandomToken returns a URL-safe random token of n bytes of entropy.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SplitList splits a comma-separated form value, trimming entries and dropping empty ones.
func SplitList(s string) []string {
	out := []string{}
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
