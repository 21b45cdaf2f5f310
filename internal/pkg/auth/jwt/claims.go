package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of the access tokens issued by the development backend.
type Payload struct {
	// StandardClaims carries the expiry (exp), issue time (iat) and issuer (iss).
	jwt.StandardClaims

	// ID is the user identifier the token was issued to.
	ID string `json:"id"`

	// Email is the account e-mail, kept so handlers can log who is calling without a lookup.
	Email string `json:"email"`
}
