package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthspan/internal/models"
)

func TestCredentialRoundTrip(t *testing.T) {
	svc, err := NewEncryptionService(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	var cred models.WearableCredential
	require.NoError(t, svc.EncryptCredential(&cred, "tok-123"))
	assert.NotEmpty(t, cred.EncryptedToken)
	assert.NotEqual(t, "tok-123", cred.EncryptedToken)

	token, err := svc.DecryptCredential(&cred)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestCredentialWithoutToken(t *testing.T) {
	svc, err := NewEncryptionService(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.EncryptCredential(&models.WearableCredential{}, ""), ErrNoToken)
	_, err = svc.DecryptCredential(&models.WearableCredential{})
	assert.ErrorIs(t, err, ErrNoToken)
}
