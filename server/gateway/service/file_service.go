package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"

	"s4/server/common/apperr"
	commonlog "s4/server/common/log"
	"s4/server/files/domain"
	"s4/server/files/repository"
)

const defaultOpTimeout = 10 * time.Second

type objectRemover interface {
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// FileService is what the HTTP layer talks to. Every capability request is authorized
// before it reaches the Issuer.
type FileService struct {
	authz   *Authorizer
	issuer  *Issuer
	lister  *Lister
	store   repository.Store
	objects objectRemover
	bucket  string
	timeout time.Duration
}

func NewFileService(authz *Authorizer, issuer *Issuer, lister *Lister, store repository.Store, objects objectRemover, bucket string) *FileService {
	return &FileService{
		authz:   authz,
		issuer:  issuer,
		lister:  lister,
		store:   store,
		objects: objects,
		bucket:  bucket,
		timeout: defaultOpTimeout,
	}
}

func (s *FileService) RequestUploadURL(ctx context.Context, principal, key string) (domain.Capability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.authz.Authorize(ctx, principal, key, domain.DirectionUpload).Err(); err != nil {
		return domain.Capability{}, err
	}
	return s.issuer.IssueUpload(ctx, key, principal)
}

func (s *FileService) RequestDownloadURL(ctx context.Context, principal, key string) (domain.Capability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.authz.Authorize(ctx, principal, key, domain.DirectionDownload).Err(); err != nil {
		return domain.Capability{}, err
	}
	return s.issuer.IssueDownload(ctx, key, principal)
}

func (s *FileService) ListFiles(ctx context.Context, principal, pageToken string, limit int) (ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.lister.List(ctx, principal, pageToken, limit)
}

// GetRecord returns the indexed record for a key the principal owns.
func (s *FileService) GetRecord(ctx context.Context, principal, key string) (domain.FileRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := domain.ValidateKey(key); err != nil {
		return domain.FileRecord{}, err
	}
	if principal == "" || !domain.InNamespace(key, principal) {
		return domain.FileRecord{}, apperr.AuthorizationDenied.New("key is outside the caller's namespace")
	}
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if rec.OwnerID != principal {
		return domain.FileRecord{}, apperr.AuthorizationDenied.New("file is owned by another principal")
	}
	return rec, nil
}

// Delete removes a file for an administrator. The record goes first so a failure part way
// leaves an object without a record, which the pipeline already tolerates.
func (s *FileService) Delete(ctx context.Context, actor, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := domain.ValidateKey(key); err != nil {
		return err
	}
	err := s.store.Delete(ctx, key)
	recordMissing := errors.Is(err, repository.ErrNotFound)
	if err != nil && !recordMissing {
		return err
	}
	if err := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.TransientDependencyFailure.Wrap(fmt.Errorf("remove object %s: %w", key, err))
	}
	commonlog.Infow("file deleted", "key", key, "actor", actor, "recordExisted", !recordMissing)
	return nil
}
