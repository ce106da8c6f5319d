package config

import "golang.org/x/crypto/bcrypt"

// HashPairingToken returns the bcrypt hash stored as peer.pairing_token_hash.
func HashPairingToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
