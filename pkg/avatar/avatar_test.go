package avatar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	// Known Gravatar reference vector.
	require.Equal(t, "0bc83cb571cd1c50ba6f3e8a78ef1346", Hash("MyEmailAddress@example.com "))

	// Normalisation: case and surrounding whitespace never change the hash.
	require.Equal(t, Hash("user@example.com"), Hash("  USER@Example.COM  "))

	require.Empty(t, Hash(""))
	require.Empty(t, Hash("   "))
}

func TestURL(t *testing.T) {
	url := URL("user@example.com", 120)
	require.Contains(t, url, "https://www.gravatar.com/avatar/")
	require.Contains(t, url, "s=120")

	require.Contains(t, URL("user@example.com", 0), "s=80")
	require.Empty(t, URL("", 120))
}
