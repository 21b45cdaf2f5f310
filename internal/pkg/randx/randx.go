/*
Package randx provides functions for generating cryptographically secure random identifiers.

The development backend uses it for record identifiers and opaque refresh tokens.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// RefreshTokenLength is the fixed length of a generated refresh token.
	RefreshTokenLength = 40
)

// ID generates a UUID v4 string used as the identifier of users, rooms, movies and messages.
func ID() string {
	return uuid.New().String()
}

// RefreshToken generates an opaque Base62 token of RefreshTokenLength characters.
func RefreshToken() (string, error) {
	return base62(RefreshTokenLength)
}

// IsValidRefreshToken reports whether token has the shape produced by RefreshToken.
func IsValidRefreshToken(token string) bool {
	if len(token) != RefreshTokenLength {
		return false
	}

	for _, char := range token {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

func base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}
