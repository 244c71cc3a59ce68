// Package avatar derives Gravatar identifiers from participant emails.
package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash returns the Gravatar hash for an email address: the hex-encoded MD5
// of the trimmed, lowercased address. An empty email yields an empty hash so
// clients can fall back to initials-based avatars.
func Hash(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}

	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// URL builds a Gravatar image URL for the email, using the "identicon"
// fallback so unknown addresses still render something distinct.
func URL(email string, size int) string {
	hash := Hash(email)
	if hash == "" {
		return ""
	}
	if size <= 0 {
		size = 80
	}

	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon&s=%d", hash, size)
}
