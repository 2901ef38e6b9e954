package jwttoken

import (
	authmw "soulbind/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts token claims into the middleware's shape:
// the subject is the principal, the jti correlates logs.
func ToMiddlewareClaims(claims *Claims) *authmw.Claims {
	return &authmw.Claims{
		Principal: claims.Subject,
		TokenID:   claims.ID,
	}
}

// ServiceAdapter satisfies the auth middleware's TokenValidator without the
// middleware importing this package.
type ServiceAdapter struct {
	service *Service
}

func NewServiceAdapter(service *Service) *ServiceAdapter {
	return &ServiceAdapter{service: service}
}

func (a *ServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
