package jwttoken

import (
	authmw "policydesk/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) *authmw.StaffClaims {
	return &authmw.StaffClaims{
		UserID:     claims.UserID,
		Name:       claims.Name,
		Department: claims.Department,
	}
}

// JWTServiceAdapter lets the auth middleware validate tokens without
// depending on this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.StaffClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
