package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are carried by a verified member's access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet"`
}

// AdminClaims are just the standard claims; the subject names the operator.
type AdminClaims struct {
	jwt.RegisteredClaims
}
