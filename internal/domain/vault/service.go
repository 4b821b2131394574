package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"montero/internal/platform/crypto"
	"montero/internal/platform/logger"
)

const (
	fieldUsername = "username"
	fieldPassword = "password"
)

type Service struct {
	store  StoreAPI
	cipher *crypto.Service
}

// New fails with ErrMissingMasterKey when no key is configured so the
// process can refuse to start.
func New(store StoreAPI, masterKey, salt string) (*Service, error) {
	c, err := crypto.New(masterKey, salt)
	if errors.Is(err, crypto.ErrMissingKey) {
		return nil, ErrMissingMasterKey
	}
	if err != nil {
		return nil, fmt.Errorf("vault key: %w", err)
	}
	return NewWithCipher(store, c), nil
}

func NewWithCipher(store StoreAPI, c *crypto.Service) *Service {
	return &Service{store: store, cipher: c}
}

// Cipher exposes the AEAD so other at-rest stores can share the vault key.
func (s *Service) Cipher() *crypto.Service { return s.cipher }

func aad(platform, field string) []byte {
	return []byte("montero/vault/" + platform + "/" + field)
}

func normalizePlatform(platform string) string {
	return strings.TrimSpace(platform)
}

func (s *Service) Put(ctx context.Context, in CredentialInput) error {
	platform := normalizePlatform(in.Platform)
	if platform == "" || in.Username == "" || in.Password == "" {
		return ErrInvalidCredential
	}
	userCT, err := s.cipher.EncryptString(in.Username, aad(platform, fieldUsername))
	if err != nil {
		return err
	}
	passCT, err := s.cipher.EncryptString(in.Password, aad(platform, fieldPassword))
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, record{
		Platform:   platform,
		UsernameCT: userCT,
		PasswordCT: passCT,
		URL:        strings.TrimSpace(in.URL),
		Notes:      in.Notes,
		KeyVersion: currentKeyVersion,
	})
}

// Get decrypts the credential for platform. Legacy plaintext rows are refused
// until Migrate has re-encrypted them.
func (s *Service) Get(ctx context.Context, platform string) (Credential, error) {
	platform = normalizePlatform(platform)
	rec, err := s.store.Get(ctx, platform)
	if err != nil {
		return Credential{}, err
	}
	username, err := s.open(rec.UsernameCT, platform, fieldUsername)
	if err != nil {
		return Credential{}, err
	}
	password, err := s.open(rec.PasswordCT, platform, fieldPassword)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Platform:  rec.Platform,
		Username:  username,
		Password:  password,
		URL:       rec.URL,
		Notes:     rec.Notes,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *Service) open(ct []byte, platform, field string) (string, error) {
	plain, err := s.cipher.DecryptString(ct, aad(platform, field))
	switch {
	case errors.Is(err, crypto.ErrUntagged):
		return "", fmt.Errorf("%s %s: %w", platform, field, ErrUntaggedCredential)
	case err != nil:
		return "", fmt.Errorf("%s %s: %w", platform, field, ErrCorruptCredential)
	}
	return plain, nil
}

func (s *Service) List(ctx context.Context) ([]Summary, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{
			Platform:   rec.Platform,
			URL:        rec.URL,
			Notes:      rec.Notes,
			KeyVersion: rec.KeyVersion,
			Encrypted:  crypto.IsTagged(rec.UsernameCT) && crypto.IsTagged(rec.PasswordCT),
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, platform string) error {
	deleted, err := s.store.Delete(ctx, normalizePlatform(platform))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrCredentialNotFound
	}
	return nil
}

// Migrate re-encrypts untagged fields in place. Tagged fields are left alone,
// so running it twice changes nothing the second time. Tagged fields that fail
// authentication are reported, never rewritten.
func (s *Service) Migrate(ctx context.Context) (MigrationReport, error) {
	log := logger.Named("vault")
	var report MigrationReport

	recs, err := s.store.List(ctx)
	if err != nil {
		return report, err
	}
	for _, rec := range recs {
		report.Scanned++
		userTagged := crypto.IsTagged(rec.UsernameCT)
		passTagged := crypto.IsTagged(rec.PasswordCT)
		if userTagged && passTagged {
			report.Skipped++
			continue
		}

		corrupt := false
		userCT, passCT := rec.UsernameCT, rec.PasswordCT
		if userTagged {
			_, err := s.cipher.Open(rec.UsernameCT, aad(rec.Platform, fieldUsername))
			corrupt = err != nil
		} else if userCT, err = s.cipher.Seal(rec.UsernameCT, aad(rec.Platform, fieldUsername)); err != nil {
			return report, err
		}
		if passTagged {
			_, err := s.cipher.Open(rec.PasswordCT, aad(rec.Platform, fieldPassword))
			corrupt = corrupt || err != nil
		} else if passCT, err = s.cipher.Seal(rec.PasswordCT, aad(rec.Platform, fieldPassword)); err != nil {
			return report, err
		}
		if corrupt {
			report.Corrupt = append(report.Corrupt, rec.Platform)
			log.Warn().Str("platform", rec.Platform).Msg("credential has a corrupt field; left untouched")
			continue
		}

		if err := s.store.UpdateCiphertexts(ctx, rec.Platform, userCT, passCT, currentKeyVersion); err != nil {
			return report, fmt.Errorf("migrate %s: %w", rec.Platform, err)
		}
		report.Migrated++
		log.Info().Str("platform", rec.Platform).Msg("credential re-encrypted")
	}
	return report, nil
}
