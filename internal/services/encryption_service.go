package services

import (
	"errors"

	"healthspan/internal/crypto"
	"healthspan/internal/models"
)

const tokenPurpose = "healthspan/wearable-token/v1"

var ErrNoToken = errors.New("wearable credential has no token")

// EncryptionService wraps the crypto service with credential helpers.
type EncryptionService struct {
	crypto *crypto.EncryptionService
}

func NewEncryptionService(masterKey []byte) (*EncryptionService, error) {
	cryptoSvc, err := crypto.NewEncryptionService(masterKey, tokenPurpose)
	if err != nil {
		return nil, err
	}
	return &EncryptionService{crypto: cryptoSvc}, nil
}

// EncryptCredential seals token into cred before it is stored.
func (s *EncryptionService) EncryptCredential(cred *models.WearableCredential, token string) error {
	if token == "" {
		return ErrNoToken
	}
	sealed, err := s.crypto.Encrypt(token)
	if err != nil {
		return err
	}
	cred.EncryptedToken = sealed
	return nil
}

// DecryptCredential returns the plaintext access token of a stored credential.
func (s *EncryptionService) DecryptCredential(cred *models.WearableCredential) (string, error) {
	if cred.EncryptedToken == "" {
		return "", ErrNoToken
	}
	return s.crypto.Decrypt(cred.EncryptedToken)
}
