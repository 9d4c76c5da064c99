package jwttoken

import (
	"attestor/internal/platform/middleware"
)

// MiddlewareAdapter exposes JWTService through the middleware validator port.
type MiddlewareAdapter struct {
	service *JWTService
}

func NewMiddlewareAdapter(service *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.AdminClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.AdminClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}
