package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims carried by a dmchat identity token.
type Payload struct {
	// StandardClaims embeds Exp, Iat and Iss used for validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// Username is the stable identity of the account; it is also the routing key of the user's room.
	Username string `json:"username"`
}
