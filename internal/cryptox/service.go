package cryptox

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/serenity-app/serenity/internal/common"
	"github.com/serenity-app/serenity/internal/filex"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/store"
)

// Service manages per-content encryption keys and file transforms.
type Service struct {
	keys *store.Collection[models.KeyRecord]
	log  logging.Logger
	now  func() time.Time
}

func NewService(s *store.Store, log logging.Logger) *Service {
	keys := store.NewCollection(s, store.CollectionEncryptionKeys,
		func(k *models.KeyRecord) string { return k.ContentID })
	return &Service{keys: keys, log: log, now: time.Now}
}

// EncryptFile encrypts the file at sourcePath with the key for contentID
// (generated and persisted on first use), writes the ciphertext next to the
// original with the encrypted suffix, removes the plaintext original, and
// returns the new path.
func (s *Service) EncryptFile(ctx context.Context, sourcePath, contentID string) (string, error) {
	key, err := s.obtainKey(ctx, contentID)
	if err != nil {
		return "", err
	}

	plaintext, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sourcePath, err)
	}

	ciphertext, err := seal(key, plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt %s: %w", contentID, err)
	}

	encPath := sourcePath + EncryptedSuffix
	if err := filex.WriteAtomic(encPath, ciphertext, 0o660); err != nil {
		return "", fmt.Errorf("write %s: %w", encPath, err)
	}

	if err := os.Remove(sourcePath); err != nil {
		s.log.Warn(ctx, "failed to remove plaintext original", "path", sourcePath, "error", err)
	}

	return encPath, nil
}

// DecryptFile materializes a temporary plaintext copy of encryptedPath for
// playback and returns its path. It fails with common.ErrKeyNotFound when no
// key is on record for contentID.
func (s *Service) DecryptFile(ctx context.Context, encryptedPath, contentID string) (string, error) {
	rec, err := s.keys.GetByID(ctx, contentID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("decrypt %s: %w", contentID, common.ErrKeyNotFound)
	}

	key, err := base64.StdEncoding.DecodeString(rec.Key)
	if err != nil {
		return "", fmt.Errorf("decode key for %s: %w", contentID, err)
	}

	data, err := os.ReadFile(encryptedPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", encryptedPath, err)
	}

	plaintext, err := open(key, data)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", contentID, err)
	}

	tempPath := strings.TrimSuffix(encryptedPath, EncryptedSuffix) + DecryptedSuffix
	if err := filex.WriteAtomic(tempPath, plaintext, 0o660); err != nil {
		return "", fmt.Errorf("write %s: %w", tempPath, err)
	}

	return tempPath, nil
}

// CleanupDecryptedFile deletes a temporary decrypted copy. Paths without the
// temp suffix are left alone.
func (s *Service) CleanupDecryptedFile(ctx context.Context, tempPath string) error {
	if !IsDecryptedTemp(tempPath) {
		return nil
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", tempPath, err)
	}
	return nil
}

// RemoveKey deletes the persisted key for contentID. Any remaining
// ciphertext for that content becomes permanently unrecoverable.
func (s *Service) RemoveKey(ctx context.Context, contentID string) error {
	if _, err := s.keys.Delete(ctx, contentID); err != nil {
		return err
	}
	return nil
}

// obtainKey loads the key for contentID or lazily generates and persists one.
func (s *Service) obtainKey(ctx context.Context, contentID string) ([]byte, error) {
	rec, err := s.keys.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return base64.StdEncoding.DecodeString(rec.Key)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	createdAt := s.now().UTC()
	key := deriveKey(contentID, createdAt, salt)

	_, err = s.keys.Save(ctx, models.KeyRecord{
		ContentID: contentID,
		Key:       base64.StdEncoding.EncodeToString(key),
		Salt:      base64.StdEncoding.EncodeToString(salt),
		CreatedAt: createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("persist key for %s: %w", contentID, err)
	}

	return key, nil
}
