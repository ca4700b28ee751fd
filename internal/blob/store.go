package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Backend is the durable object-storage side of the store. Production
// deployments must have one; local filesystem does not survive redeploys.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string // CDN base for public URLs, e.g. https://cdn.example.com
	LocalRoot     string // sandboxed filesystem root for non-production fallback
	Production    bool
}

// Store persists file bytes against the durable backend, falling back to a
// sandboxed local directory outside production.
type Store struct {
	backend       Backend
	publicBaseURL string
	localRoot     string
	production    bool
}

func New(cfg Config) (*Store, error) {
	s := &Store{
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		localRoot:     cfg.LocalRoot,
		production:    cfg.Production,
	}
	if cfg.Endpoint != "" {
		backend, err := newMinioBackend(cfg)
		if err != nil {
			return nil, err
		}
		s.backend = backend
	}
	if s.backend == nil && cfg.Production {
		return nil, errors.New("durable storage backend is required in production")
	}
	if s.localRoot == "" {
		s.localRoot = "storage"
	}
	return s, nil
}

// NewWithBackend wires an explicit backend; used by tests.
func NewWithBackend(backend Backend, publicBaseURL, localRoot string, production bool) *Store {
	return &Store{
		backend:       backend,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		localRoot:     localRoot,
		production:    production,
	}
}

// Upload stores data under ref and returns the canonical key. In production
// the durable backend is mandatory; without one outside production it writes
// inside the local root, re-verifying containment after the path join.
func (s *Store) Upload(ctx context.Context, ref string, data []byte, contentType string) (string, error) {
	key, err := Canonicalize(ref)
	if err != nil {
		return "", err
	}
	if s.backend != nil {
		if err := s.backend.Put(ctx, key, data, contentType); err != nil {
			return "", fmt.Errorf("backend upload %s: %w", key, err)
		}
		return key, nil
	}
	if s.production {
		return "", errors.New("durable storage backend is required in production")
	}
	dst, err := s.localPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("local upload %s: %w", key, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("local upload %s: %w", key, err)
	}
	return key, nil
}

// Download resolves ref and returns the file bytes, trying the durable
// backend first and the local root on failure.
func (s *Store) Download(ctx context.Context, ref string) ([]byte, error) {
	key, err := Canonicalize(ref)
	if err != nil {
		return nil, err
	}
	var backendErr error
	if s.backend != nil {
		data, err := s.backend.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		backendErr = err
		log.Printf("blob: backend download %s failed, trying local: %v", key, err)
	}
	dst, err := s.localPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		if backendErr != nil {
			return nil, fmt.Errorf("download %s: backend: %v, local: %w", key, backendErr, err)
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return data, nil
}

// Delete removes ref from the backend and the local root. A backend failure
// is logged and the local removal still runs; only total failure errors.
func (s *Store) Delete(ctx context.Context, ref string) error {
	key, err := Canonicalize(ref)
	if err != nil {
		return err
	}
	var backendErr error
	if s.backend != nil {
		if backendErr = s.backend.Remove(ctx, key); backendErr != nil {
			log.Printf("blob: backend delete %s failed, trying local: %v", key, backendErr)
		}
	}
	dst, err := s.localPath(key)
	if err != nil {
		return err
	}
	localErr := os.Remove(dst)
	if localErr != nil && os.IsNotExist(localErr) {
		localErr = nil
	}
	if s.backend != nil && backendErr == nil {
		return nil
	}
	if localErr != nil {
		if backendErr != nil {
			return fmt.Errorf("delete %s: backend: %v, local: %w", key, backendErr, localErr)
		}
		return fmt.Errorf("delete %s: %w", key, localErr)
	}
	return nil
}

// PublicURL returns the CDN URL for ref when a durable backend is configured,
// else an application-relative URL served from the local root.
func (s *Store) PublicURL(baseURL, ref string) (string, error) {
	key, err := Canonicalize(ref)
	if err != nil {
		return "", err
	}
	if s.backend != nil && s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return strings.TrimRight(baseURL, "/") + "/files/" + key, nil
}

// localPath joins key under the sandbox root and rejects any resolved path
// that escapes it. Canonicalize already refuses traversal, so a failure here
// indicates a bug or an attack.
func (s *Store) localPath(key string) (string, error) {
	root, err := filepath.Abs(s.localRoot)
	if err != nil {
		return "", fmt.Errorf("resolve local root: %w", err)
	}
	dst := filepath.Join(root, filepath.FromSlash(key))
	if dst != root && !strings.HasPrefix(dst, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes storage root", ErrUnsafePath, key)
	}
	return dst, nil
}

// --- minio backend ---

type minioBackend struct {
	client *minio.Client
	bucket string
}

func newMinioBackend(cfg Config) (*minioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &minioBackend{client: client, bucket: cfg.Bucket}, nil
}

func (b *minioBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (b *minioBackend) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (b *minioBackend) Remove(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}
