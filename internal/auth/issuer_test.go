package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/plant-maintenance/internal/model"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer := NewIssuer("test-secret", 15*time.Minute)
	plant := "Plant-7"
	id := model.Identity{ID: 42, Email: "tech@plant.example", Role: model.RoleManager, AssignedPlant: &plant}

	now := time.Now().UTC()
	token, exp, err := issuer.IssueAccessToken(id, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(15*time.Minute), exp, time.Second)

	got, err := issuer.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.ID)
	assert.Equal(t, "tech@plant.example", got.Email)
	assert.Equal(t, model.RoleManager, got.Role)
	require.NotNil(t, got.AssignedPlant)
	assert.Equal(t, "Plant-7", *got.AssignedPlant)
}

func TestVerifyAccessTokenNilPlant(t *testing.T) {
	issuer := NewIssuer("test-secret", 15*time.Minute)
	id := model.Identity{ID: 7, Email: "user@plant.example", Role: model.RoleUser}

	token, _, err := issuer.IssueAccessToken(id, time.Now().UTC())
	require.NoError(t, err)

	got, err := issuer.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedPlant)
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	issuer := NewIssuer("test-secret", 15*time.Minute)
	id := model.Identity{ID: 1, Email: "old@plant.example", Role: model.RoleUser}

	// Issued an hour ago with a 15-minute TTL.
	token, _, err := issuer.IssueAccessToken(id, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccessTokenInvalid(t *testing.T) {
	issuer := NewIssuer("test-secret", 15*time.Minute)

	_, err := issuer.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Valid structure, wrong signing key.
	other := NewIssuer("other-secret", 15*time.Minute)
	token, _, err := other.IssueAccessToken(model.Identity{ID: 1, Email: "a@b.c", Role: model.RoleUser}, time.Now().UTC())
	assert.NoError(t, err)
	_, err = issuer.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshSecret(t *testing.T) {
	a, err := NewRefreshSecret()
	assert.NoError(t, err)
	b, err := NewRefreshSecret()
	assert.NoError(t, err)

	// 32 random bytes hex encoded: 64 characters, never repeated.
	assert.Len(t, a, 64)
	assert.Len(t, b, 64)
	assert.NotEqual(t, a, b)
}

func TestHashRefreshSecret(t *testing.T) {
	h1 := HashRefreshSecret("abc")
	h2 := HashRefreshSecret("abc")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashRefreshSecret("abd"))
}
