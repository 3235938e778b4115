package jwttoken

import (
	authmw "uptime/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims exposes the token subject as the record API user id.
func ToMiddlewareClaims(claims *Claims) *authmw.JWTClaims {
	if claims == nil {
		return nil
	}
	return &authmw.JWTClaims{UserID: claims.Subject}
}

// JWTServiceAdapter lets RequireAuth validate tokens without importing this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
