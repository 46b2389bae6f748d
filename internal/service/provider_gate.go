package service

import (
	"context"
	"fmt"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/pkg/jwt"
)

// ProviderGate 통역사 역할 참가 자격 확인
type ProviderGate interface {
	Authorize(ctx context.Context, identity, token string) error
}

// OpenProviderGate 모든 통역사 참가를 허용 (자격 검증 미설정 환경)
type OpenProviderGate struct{}

func (OpenProviderGate) Authorize(context.Context, string, string) error {
	return nil
}

// JWTProviderGate 검증된 통역사 토큰을 요구한다
type JWTProviderGate struct {
	jwtManager *jwt.JWTManager
}

func NewJWTProviderGate(jwtManager *jwt.JWTManager) *JWTProviderGate {
	return &JWTProviderGate{jwtManager: jwtManager}
}

// Authorize 토큰이 유효하고, 같은 identity 의 검증된 provider 클레임이어야 한다
func (g *JWTProviderGate) Authorize(_ context.Context, identity, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrNotAuthorizedProvider)
	}

	claims, err := g.jwtManager.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthorizedProvider, err)
	}

	if role, ok := models.ParseRole(claims.Role); !ok || role != models.RoleProvider {
		return fmt.Errorf("%w: token role %q", ErrNotAuthorizedProvider, claims.Role)
	}
	if !claims.Verified {
		return fmt.Errorf("%w: provider not verified", ErrNotAuthorizedProvider)
	}
	if models.NormalizeIdentity(claims.Identity) != models.NormalizeIdentity(identity) {
		return fmt.Errorf("%w: identity mismatch", ErrNotAuthorizedProvider)
	}
	return nil
}
