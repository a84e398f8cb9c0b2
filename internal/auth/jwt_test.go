package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewJWTValidator("secret")
	tok, err := v.IssueToken(42, "alice", time.Hour)
	require.NoError(t, err)

	id, err := v.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTValidator("other").IssueToken(42, "alice", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTValidator("secret").ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewJWTValidator("secret")
	tok, err := v.IssueToken(42, "alice", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewJWTValidator("secret").ValidateToken("not-a-token")
	assert.Error(t, err)
}
