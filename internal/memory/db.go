package memory

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

const keyFileName = "key"

// resolveKey returns the 32-byte at-rest encryption key, trying in
// order: a key file under a directory named for the keychain service
// (the closest analogue to an OS keychain entry available without a
// cgo keychain binding), the named environment variable, and finally
// an ephemeral random key — matching the external interface's
// "keychain → env → ephemeral" precedence. The source string is
// returned for logging, never the key itself.
func resolveKey(keychainService, keyEnv string) (key [chacha20poly1305.KeySize]byte, source string, err error) {
	if keychainService != "" {
		dir, dirErr := os.UserConfigDir()
		if dirErr == nil {
			keyPath := filepath.Join(dir, keychainService, keyFileName)
			if data, readErr := os.ReadFile(keyPath); readErr == nil && len(data) == chacha20poly1305.KeySize {
				copy(key[:], data)
				return key, "keychain", nil
			}
			// No existing key — mint one and persist it so future runs
			// reuse it rather than generating ephemeral keys forever.
			if _, mkErr := rand.Read(key[:]); mkErr != nil {
				return key, "", fmt.Errorf("failed to generate key: %w", mkErr)
			}
			if mkdirErr := os.MkdirAll(filepath.Dir(keyPath), 0700); mkdirErr == nil {
				_ = os.WriteFile(keyPath, key[:], 0600)
				return key, "keychain", nil
			}
		}
	}

	if keyEnv != "" {
		if v := os.Getenv(keyEnv); v != "" && len(v) >= chacha20poly1305.KeySize {
			copy(key[:], v[:chacha20poly1305.KeySize])
			return key, "env", nil
		}
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, "", fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return key, "ephemeral", nil
}

// SealedStore wraps a plaintext-on-disk SQLite database that is sealed
// (encrypted) into a single-file blob when closed and opened
// (decrypted) when constructed, so the file at rest never carries
// plaintext task history.
type SealedStore struct {
	DB         *sql.DB
	plainPath  string
	sealedPath string
	key        [chacha20poly1305.KeySize]byte
	keySource  string
}

// OpenSealed opens (decrypting if a sealed blob already exists) the
// SQLite database at dbDir/name, applying the pragmas and the supplied
// schema on every open.
func OpenSealed(dbDir, name, keychainService, keyEnv, schema string) (*SealedStore, error) {
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	key, source, err := resolveKey(keychainService, keyEnv)
	if err != nil {
		return nil, err
	}

	plainPath := filepath.Join(dbDir, name+".db")
	sealedPath := filepath.Join(dbDir, name+".db.enc")

	if _, statErr := os.Stat(sealedPath); statErr == nil {
		if err := decryptFile(sealedPath, plainPath, key); err != nil {
			return nil, fmt.Errorf("key/keychain mismatch opening %s: %w", name, err)
		}
	}

	db, err := sql.Open("sqlite", plainPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s db: %w", name, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma on %s: %w", name, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s schema: %w", name, err)
	}

	return &SealedStore{
		DB:         db,
		plainPath:  plainPath,
		sealedPath: sealedPath,
		key:        key,
		keySource:  source,
	}, nil
}

// KeySource reports which precedence tier supplied the at-rest key
// ("keychain", "env", or "ephemeral") for startup logging.
func (s *SealedStore) KeySource() string { return s.keySource }

// Close checkpoints the WAL into the main file, seals it in place, and
// removes the plaintext artifacts.
func (s *SealedStore) Close() error {
	if _, err := s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.DB.Close()
		return fmt.Errorf("failed to checkpoint wal before sealing: %w", err)
	}
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	if err := encryptFile(s.plainPath, s.sealedPath, s.key); err != nil {
		return fmt.Errorf("failed to seal %s: %w", s.plainPath, err)
	}
	_ = os.Remove(s.plainPath)
	_ = os.Remove(s.plainPath + "-wal")
	_ = os.Remove(s.plainPath + "-shm")
	return nil
}

func encryptFile(plainPath, sealedPath string, key [chacha20poly1305.KeySize]byte) error {
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return os.WriteFile(sealedPath, ciphertext, 0600)
}

func decryptFile(sealedPath, plainPath string, key [chacha20poly1305.KeySize]byte) error {
	blob, err := os.ReadFile(sealedPath)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return err
	}
	if len(blob) < aead.NonceSize() {
		return fmt.Errorf("sealed file %s is truncated", sealedPath)
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("database encryption key mismatch: %w", err)
	}
	return os.WriteFile(plainPath, plaintext, 0600)
}
