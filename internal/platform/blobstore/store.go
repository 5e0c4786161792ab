// Package blobstore stores nurse credential scans and visit documentation.
// Objects are addressed by key (see keys.go), encrypted at rest with
// AES-256-GCM when a key is configured, optionally versioned, and every
// access is written to the access log.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrVersionNotFound    = errors.New("object version not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidKey         = errors.New("invalid object key")
	ErrIntegrity          = errors.New("object failed integrity check")
)

// MaxFileSize is the maximum allowed object size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// AllowedContentTypes lists the document formats accepted for credentials
// and visit documentation.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/heic":      true,
	"image/webp":      true,
	"text/plain":      true,
}

// ObjectInfo describes one stored version of an object.
type ObjectInfo struct {
	Key         string    `json:"key"`
	VersionID   string    `json:"version_id"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	Encrypted   bool      `json:"encrypted"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	IsLatest    bool      `json:"is_latest"`
}

// BlobStore is the contract domain services depend on.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	GetVersion(ctx context.Context, key, versionID string) (io.ReadCloser, *ObjectInfo, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Versions(ctx context.Context, key string) ([]ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Options configures a Store.
type Options struct {
	// Cipher enables encryption at rest. Nil stores plaintext.
	Cipher *Cipher
	// Versioning keeps earlier versions when a key is overwritten.
	Versioning bool
	Logger     zerolog.Logger
}

// Store implements BlobStore over a Backend.
type Store struct {
	backend    Backend
	cipher     *Cipher
	versioning bool
	logger     zerolog.Logger

	// mu serialises index read-modify-write cycles.
	mu sync.Mutex
}

var _ BlobStore = (*Store)(nil)

// New creates a Store.
func New(backend Backend, opts Options) *Store {
	return &Store{
		backend:    backend,
		cipher:     opts.Cipher,
		versioning: opts.Versioning,
		logger:     opts.Logger.With().Str("component", "blobstore").Logger(),
	}
}

func indexName(key string) string            { return "index/" + key }
func dataName(key, versionID string) string { return "data/" + key + "@" + versionID }

// Put stores content under key. With versioning enabled the previous
// versions stay readable; otherwise they are removed.
func (s *Store) Put(ctx context.Context, key, contentType string, content io.Reader) (*ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	contentType = normalizeContentType(contentType)
	if !AllowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	sum := sha256.Sum256(data)
	info := ObjectInfo{
		Key:         key,
		VersionID:   uuid.New().String(),
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sum),
		Encrypted:   s.cipher != nil,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   auth.UserIDFromContext(ctx),
	}

	stored := data
	if s.cipher != nil {
		stored, err = s.cipher.Seal(data, []byte(key))
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.loadIndex(ctx, key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return nil, err
	}

	if err := s.backend.Put(ctx, dataName(key, info.VersionID), stored); err != nil {
		return nil, fmt.Errorf("write object: %w", err)
	}

	var superseded []ObjectInfo
	if !s.versioning {
		superseded, versions = versions, nil
	}
	versions = append(versions, info)

	if err := s.saveIndex(ctx, key, versions); err != nil {
		if derr := s.backend.Delete(ctx, dataName(key, info.VersionID)); derr != nil {
			s.logger.Warn().Err(derr).Str("key", key).Msg("orphaned object data after failed index write")
		}
		return nil, err
	}
	// Superseded data is unreferenced once the index is saved.
	for _, v := range superseded {
		if err := s.backend.Delete(ctx, dataName(key, v.VersionID)); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Str("version_id", v.VersionID).Msg("remove previous version")
		}
	}

	s.logAccess(ctx, "put", key, info.VersionID)
	info.IsLatest = true
	return &info, nil
}

// Get returns the latest version of key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return s.read(ctx, *info)
}

// GetVersion returns a specific version of key.
func (s *Store) GetVersion(ctx context.Context, key, versionID string) (io.ReadCloser, *ObjectInfo, error) {
	versions, err := s.Versions(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range versions {
		if v.VersionID == versionID {
			return s.read(ctx, v)
		}
	}
	return nil, nil, ErrVersionNotFound
}

func (s *Store) read(ctx context.Context, info ObjectInfo) (io.ReadCloser, *ObjectInfo, error) {
	data, err := s.backend.Get(ctx, dataName(info.Key, info.VersionID))
	if err != nil {
		return nil, nil, err
	}
	if info.Encrypted {
		if s.cipher == nil {
			return nil, nil, fmt.Errorf("object %s is encrypted but no storage key is configured", info.Key)
		}
		data, err = s.cipher.Open(data, []byte(info.Key))
		if err != nil {
			return nil, nil, err
		}
	}
	if fmt.Sprintf("%x", sha256.Sum256(data)) != info.Hash {
		return nil, nil, ErrIntegrity
	}

	s.logAccess(ctx, "get", info.Key, info.VersionID)
	return io.NopCloser(bytes.NewReader(data)), &info, nil
}

// Stat returns metadata of the latest version of key.
func (s *Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	versions, err := s.Versions(ctx, key)
	if err != nil {
		return nil, err
	}
	latest := versions[0]
	return &latest, nil
}

// Versions returns every stored version of key, newest first.
func (s *Store) Versions(ctx context.Context, key string) ([]ObjectInfo, error) {
	versions, err := s.loadIndex(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrObjectNotFound
	}

	out := make([]ObjectInfo, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v
	}
	out[0].IsLatest = true
	return out, nil
}

// List returns the latest version of every key under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	names, err := s.backend.List(ctx, indexName(prefix))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	out := make([]ObjectInfo, 0, len(names))
	for _, name := range names {
		info, err := s.Stat(ctx, strings.TrimPrefix(name, "index/"))
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	s.logAccess(ctx, "list", prefix, "")
	return out, nil
}

// Delete removes key and all of its versions.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.loadIndex(ctx, key)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.backend.Delete(ctx, dataName(key, v.VersionID)); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
	}
	if err := s.backend.Delete(ctx, indexName(key)); err != nil {
		return fmt.Errorf("delete object index: %w", err)
	}

	s.logAccess(ctx, "delete", key, "")
	return nil
}

func (s *Store) loadIndex(ctx context.Context, key string) ([]ObjectInfo, error) {
	raw, err := s.backend.Get(ctx, indexName(key))
	if err != nil {
		return nil, err
	}
	var versions []ObjectInfo
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, fmt.Errorf("decode object index %s: %w", key, err)
	}
	return versions, nil
}

func (s *Store) saveIndex(ctx context.Context, key string, versions []ObjectInfo) error {
	for i := range versions {
		versions[i].IsLatest = false
	}
	raw, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("encode object index: %w", err)
	}
	if err := s.backend.Put(ctx, indexName(key), raw); err != nil {
		return fmt.Errorf("write object index: %w", err)
	}
	return nil
}

func (s *Store) logAccess(ctx context.Context, op, key, versionID string) {
	s.logger.Info().
		Str("type", "storage_access").
		Str("op", op).
		Str("key", key).
		Str("version_id", versionID).
		Str("user_id", auth.UserIDFromContext(ctx)).
		Msg("object access")
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
