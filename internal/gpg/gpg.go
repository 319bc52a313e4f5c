// Package gpg verifies PGP signatures on dependency manifests before they
// are handed to pip.
package gpg

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

const (
	maxSignedFileSize = 64 * 1024 * 1024 // Manifests and lockfiles, not binaries
	maxKeyFileSize    = 1024 * 1024
	keyFileMode       = 0600 // Required file permissions for key files on Unix systems
)

// Sentinel errors for keyring handling
var (
	ErrNilKeyRing = errors.New("keyring cannot be nil")
	ErrNoKeys     = errors.New("no keys in keyring")
)

// KeyRing represents a collection of PGP keys for signature verification
type KeyRing interface {
	VerifyDetached(message []byte, signature []byte) error
	AddKey(key Key) error
}

// Key represents a PGP public key
type Key interface {
	IsRevoked() bool
	GetFingerprint() string
}

// ClearTextMessage represents a clear-signed PGP message
type ClearTextMessage struct {
	Data      []byte
	Signature []byte
}

// RealKeyRing implements KeyRing using gopenpgp v2 for actual cryptographic verification
type RealKeyRing struct {
	keyRing *crypto.KeyRing
}

// RealKey implements Key with actual PGP key data
type RealKey struct {
	pgpKey      *crypto.Key
	fingerprint string
	revoked     bool
}

// NewRealKeyRing creates a new RealKeyRing using gopenpgp v2
func NewRealKeyRing() *RealKeyRing {
	return &RealKeyRing{
		keyRing: nil, // Will be initialized when first key is added
	}
}

// VerifyDetached implements KeyRing interface with real GPG verification
func (rk *RealKeyRing) VerifyDetached(message []byte, signature []byte) error {
	if rk.keyRing == nil {
		return ErrNoKeys
	}

	plainMessage := crypto.NewPlainMessage(message)

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		// Try binary format if armored fails
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	err = rk.keyRing.VerifyDetached(plainMessage, pgpSignature, crypto.GetUnixTime())
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	return nil
}

// AddKey implements KeyRing interface
func (rk *RealKeyRing) AddKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}

	realKey, ok := key.(*RealKey)
	if !ok {
		return fmt.Errorf("unsupported key type")
	}

	// Initialize keyring if needed
	if rk.keyRing == nil {
		var err error
		rk.keyRing, err = crypto.NewKeyRing(realKey.pgpKey)
		if err != nil {
			return fmt.Errorf("failed to create keyring: %w", err)
		}
	} else {
		if err := rk.keyRing.AddKey(realKey.pgpKey); err != nil {
			return fmt.Errorf("failed to add key to keyring: %w", err)
		}
	}

	return nil
}

// NewRealKey creates a new RealKey from armored data using gopenpgp v2
func NewRealKey(armoredData string) (*RealKey, error) {
	if armoredData == "" {
		return nil, fmt.Errorf("armored data cannot be empty")
	}

	pgpKey, err := crypto.NewKeyFromArmored(armoredData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}

	return &RealKey{
		pgpKey:      pgpKey,
		fingerprint: pgpKey.GetFingerprint(),
		revoked:     false,
	}, nil
}

// IsRevoked implements Key interface
func (rk *RealKey) IsRevoked() bool {
	return rk.revoked
}

// GetFingerprint implements Key interface
func (rk *RealKey) GetFingerprint() string {
	return rk.fingerprint
}

// MockKeyRing implements KeyRing for testing without cryptographic material
type MockKeyRing struct {
	VerifyErr   error
	VerifyCalls int
	keys        []Key
}

// MockKey implements Key for testing
type MockKey struct {
	fingerprint string
	revoked     bool
}

// NewMockKeyRing creates a new MockKeyRing
func NewMockKeyRing() *MockKeyRing {
	return &MockKeyRing{
		keys: make([]Key, 0),
	}
}

// NewMockKey creates a new MockKey with a fingerprint derived from the data
func NewMockKey(armoredData string) (*MockKey, error) {
	if armoredData == "" {
		return nil, fmt.Errorf("armored data cannot be empty")
	}

	hash := sha256.Sum256([]byte(armoredData))
	return &MockKey{
		fingerprint: fmt.Sprintf("fp_%x", hash[:8]),
		revoked:     false,
	}, nil
}

// VerifyDetached implements KeyRing interface, returning the configured error
func (m *MockKeyRing) VerifyDetached(message []byte, signature []byte) error {
	m.VerifyCalls++
	if len(m.keys) == 0 {
		return ErrNoKeys
	}
	return m.VerifyErr
}

// AddKey implements KeyRing interface
func (m *MockKeyRing) AddKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}

	m.keys = append(m.keys, key)
	return nil
}

// IsRevoked implements Key interface
func (k *MockKey) IsRevoked() bool {
	return k.revoked
}

// GetFingerprint implements Key interface
func (k *MockKey) GetFingerprint() string {
	return k.fingerprint
}

// Verifier checks manifest signatures before provisioning runs any installs.
type Verifier struct {
	keyRing KeyRing
	logger  *slog.Logger
}

// NewVerifier creates a Verifier backed by the given keyring.
func NewVerifier(keyRing KeyRing, logger *slog.Logger) *Verifier {
	return &Verifier{
		keyRing: keyRing,
		logger:  logger,
	}
}

// VerifyManifest verifies the detached signature for a manifest file.
// A verification failure means the manifest must not be installed.
func (v *Verifier) VerifyManifest(manifestPath, sigPath string) error {
	if v.keyRing == nil {
		return ErrNilKeyRing
	}

	if err := VerifyDetachedSignature(v.keyRing, manifestPath, sigPath); err != nil {
		return err
	}

	if v.logger != nil {
		v.logger.Debug("manifest signature verified",
			"manifest", manifestPath,
			"signature", sigPath)
	}
	return nil
}

// VerifyDetachedSignature verifies a detached signature (.asc or .sig file)
// against the given data file using the provided KeyRing.
func VerifyDetachedSignature(keyRing KeyRing, dataFilePath string, sigFilePath string) error {
	if keyRing == nil {
		return ErrNilKeyRing
	}

	// Get file info before reading to check size
	dataFileInfo, err := os.Stat(dataFilePath)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	if dataFileInfo.Size() > maxSignedFileSize {
		return fmt.Errorf("data file exceeds maximum allowed size of %d bytes", maxSignedFileSize)
	}

	sigFileInfo, err := os.Stat(sigFilePath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}
	if sigFileInfo.Size() > maxSignedFileSize {
		return fmt.Errorf("signature file exceeds maximum allowed size of %d bytes", maxSignedFileSize)
	}

	dataFileContent, err := os.ReadFile(dataFilePath)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	sigFileContent, err := os.ReadFile(sigFilePath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	if err := keyRing.VerifyDetached(dataFileContent, sigFileContent); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// VerifyClearSignedFile verifies an ASCII-armored clear-signed file (.asc file)
// using the provided KeyRing. It returns the plaintext content of the message
// if verification is successful.
func VerifyClearSignedFile(keyRing KeyRing, ascFilePath string) (string, error) {
	if keyRing == nil {
		return "", ErrNilKeyRing
	}

	// Get file info before reading to check size
	ascFileInfo, err := os.Stat(ascFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read clear-signed file: %w", err)
	}
	if ascFileInfo.Size() > maxSignedFileSize {
		return "", fmt.Errorf("clear-signed file exceeds maximum allowed size of %d bytes", maxSignedFileSize)
	}

	ascFileContent, err := os.ReadFile(ascFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read clear-signed file: %w", err)
	}

	clearTextMessage, err := ParseClearTextMessage(string(ascFileContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse clear-signed message: %w", err)
	}

	if err := keyRing.VerifyDetached(clearTextMessage.Data, clearTextMessage.Signature); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	return string(clearTextMessage.Data), nil
}

// ParseClearTextMessage parses a clear-signed message from armored text
func ParseClearTextMessage(armoredText string) (*ClearTextMessage, error) {
	if armoredText == "" {
		return nil, fmt.Errorf("armored text cannot be empty")
	}

	lines := strings.Split(armoredText, "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("invalid clear-signed message format")
	}

	// Find the message and signature parts
	messageStart := -1
	signatureStart := -1

	for i, line := range lines {
		if strings.Contains(line, "BEGIN PGP SIGNED MESSAGE") {
			messageStart = i + 1
		}
		if strings.Contains(line, "BEGIN PGP SIGNATURE") {
			signatureStart = i
			break
		}
	}

	if messageStart == -1 || signatureStart == -1 {
		return nil, fmt.Errorf("invalid clear-signed message structure")
	}

	// Extract message (skip hash line if present)
	messageLines := lines[messageStart:signatureStart]
	if len(messageLines) > 0 && strings.HasPrefix(messageLines[0], "Hash:") {
		messageLines = messageLines[2:] // Skip hash line and empty line
	}

	message := strings.Join(messageLines, "\n")
	signature := strings.Join(lines[signatureStart:], "\n")

	return &ClearTextMessage{
		Data:      []byte(strings.TrimSpace(message)),
		Signature: []byte(signature),
	}, nil
}

// LoadKeyRing loads PGP public keys from a path that may be a single armored
// key file or a directory of .asc files.
func LoadKeyRing(path string) (KeyRing, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access keyring path: %w", err)
	}
	if info.IsDir() {
		return LoadKeyRingFromPath(path)
	}
	return LoadKeyRingFromFile(path)
}

// LoadKeyRingFromFile loads a single ASCII-armored PGP public key file
// and returns a KeyRing containing that key.
func LoadKeyRingFromFile(keyPath string) (KeyRing, error) {
	if err := validateKeyFile(keyPath); err != nil {
		return nil, fmt.Errorf("invalid key file '%s': %w", filepath.Base(keyPath), err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	return LoadKeyRingFromStrings([]string{string(keyData)})
}

// LoadKeyRingFromPath loads all ASCII-armored PGP public keys from the given
// directory path and returns a KeyRing containing these keys.
func LoadKeyRingFromPath(keysPath string) (KeyRing, error) {
	files, err := os.ReadDir(keysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys directory: %w", err)
	}

	keyRing := NewRealKeyRing()
	keyCount := 0

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".asc" {
			continue
		}

		filePath := filepath.Join(keysPath, file.Name())
		if err := validateKeyFile(filePath); err != nil {
			return nil, fmt.Errorf("invalid key file '%s': %w", file.Name(), err)
		}

		keyData, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}

		key, err := NewRealKey(string(keyData))
		if err != nil {
			return nil, fmt.Errorf("failed to parse armored key: %w", err)
		}

		if err := validateKey(key); err != nil {
			return nil, fmt.Errorf("invalid key in file '%s': %w", file.Name(), err)
		}

		if err := keyRing.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key to keyring: %w", err)
		}
		keyCount++
	}

	if keyCount == 0 {
		return nil, fmt.Errorf("no .asc keys found in directory")
	}
	return keyRing, nil
}

// LoadKeyRingFromStrings loads PGP public keys from a slice of ASCII-armored
// key strings and returns a KeyRing containing these keys.
func LoadKeyRingFromStrings(armoredKeys []string) (KeyRing, error) {
	if len(armoredKeys) == 0 {
		return nil, fmt.Errorf("no armored keys provided")
	}

	keyRing := NewRealKeyRing()
	for i, armoredKey := range armoredKeys {
		key, err := NewRealKey(armoredKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse armored key string at index %d: %w", i, err)
		}

		if err := validateKey(key); err != nil {
			return nil, fmt.Errorf("invalid key at index %d: %w", i, err)
		}

		if err := keyRing.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key to keyring: %w", err)
		}
	}
	return keyRing, nil
}

// validateKeyFile checks if a key file has appropriate permissions and size
func validateKeyFile(filePath string) error {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}

	if fileInfo.Size() > maxKeyFileSize {
		return fmt.Errorf("key file exceeds maximum allowed size of %d bytes", maxKeyFileSize)
	}

	// Check file permissions (allow both 0600 and 0644 for compatibility)
	perm := fileInfo.Mode().Perm()
	if perm != keyFileMode && perm != 0644 {
		return fmt.Errorf("key file has incorrect permissions. Expected %o or 0644, got %o", keyFileMode, perm)
	}

	return nil
}

// validateKey performs basic validation of a PGP key
func validateKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key is nil")
	}

	if key.IsRevoked() {
		return fmt.Errorf("key is revoked")
	}

	return nil
}
