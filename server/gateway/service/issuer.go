package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	commonlog "s4/server/common/log"
	"s4/server/files/domain"
)

const (
	DefaultCapabilityTTL = 5 * time.Minute
	minCapabilityTTL     = time.Second
	maxCapabilityTTL     = 7 * 24 * time.Hour
)

type presigner interface {
	PresignedPutObject(ctx context.Context, bucket, object string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Issuer mints time-limited pre-signed URLs. It does not authorize; callers go through
// FileService, which runs the Authorizer first.
type Issuer struct {
	client presigner
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(client presigner, bucket string, ttl time.Duration) *Issuer {
	switch {
	case ttl <= 0:
		ttl = DefaultCapabilityTTL
	case ttl < minCapabilityTTL:
		ttl = minCapabilityTTL
	case ttl > maxCapabilityTTL:
		ttl = maxCapabilityTTL
	}
	return &Issuer{client: client, bucket: bucket, ttl: ttl, now: time.Now}
}

func (i *Issuer) IssueUpload(ctx context.Context, key, principal string) (domain.Capability, error) {
	return i.issue(ctx, key, principal, domain.MethodPut)
}

func (i *Issuer) IssueDownload(ctx context.Context, key, principal string) (domain.Capability, error) {
	return i.issue(ctx, key, principal, domain.MethodGet)
}

func (i *Issuer) issue(ctx context.Context, key, principal string, method domain.Method) (domain.Capability, error) {
	if err := domain.ValidateKey(key); err != nil {
		return domain.Capability{}, err
	}
	issuedAt := i.now()

	var (
		u   *url.URL
		err error
	)
	if method == domain.MethodPut {
		u, err = i.client.PresignedPutObject(ctx, i.bucket, key, i.ttl)
	} else {
		u, err = i.client.PresignedGetObject(ctx, i.bucket, key, i.ttl, url.Values{})
	}
	if err != nil {
		return domain.Capability{}, fmt.Errorf("presign %s %s: %w", method, key, err)
	}
	commonlog.Debugf("issued %s capability for %s to %s", method, key, principal)
	return domain.Capability{
		Key:       key,
		Method:    method,
		URL:       u.String(),
		ExpiresAt: issuedAt.Add(i.ttl).UTC(),
	}, nil
}
