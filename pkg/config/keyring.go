package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name passwords are stored under.
const KeyringService = "dmrelay"

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// ErrNoKeyringPassword is returned when the keyring holds no password for
// the account.
var ErrNoKeyringPassword = errors.New("no password stored in keyring")

// PasswordFromKeyringFor reads the stored password of username.
func PasswordFromKeyringFor(username string) (string, error) {
	pw, err := keyringGet(KeyringService, username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoKeyringPassword
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return pw, nil
}

// StorePassword saves the password of username in the OS keyring.
func StorePassword(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	if err := keyringSet(KeyringService, username, password); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// DeletePassword removes the stored password of username. Deleting a
// password that is not stored is not an error.
func DeletePassword(username string) error {
	if err := keyringDelete(KeyringService, username); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
