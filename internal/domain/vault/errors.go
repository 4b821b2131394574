package vault

import "errors"

var (
	ErrMissingMasterKey   = errors.New("vault master key is not configured")
	ErrCorruptCredential  = errors.New("stored credential failed to decrypt")
	ErrUntaggedCredential = errors.New("stored credential is not encrypted; run the vault migration")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidCredential  = errors.New("platform, username and password are required")
)
