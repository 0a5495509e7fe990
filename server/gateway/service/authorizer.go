package service

import (
	"context"
	"errors"

	"s4/server/common/apperr"
	commonlog "s4/server/common/log"
	"s4/server/files/domain"
	"s4/server/files/repository"
)

// Decision is the outcome of an authorization check. The zero value denies.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err returns nil for Allow and an AuthorizationDenied error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.AuthorizationDenied.New("%s", d.Reason)
}

type recordReader interface {
	Get(ctx context.Context, key string) (domain.FileRecord, error)
}

// Authorizer decides whether a principal may upload or download a key. Keys live in the
// principal's namespace (<principal>/...); downloads also check the indexed owner.
type Authorizer struct {
	records recordReader
}

func NewAuthorizer(records recordReader) *Authorizer {
	return &Authorizer{records: records}
}

func (a *Authorizer) Authorize(ctx context.Context, principal, key string, direction domain.Direction) Decision {
	if principal == "" {
		return deny("no authenticated principal")
	}
	if err := domain.ValidateKey(key); err != nil {
		return deny(err.Error())
	}
	if !domain.InNamespace(key, principal) {
		return deny("key is outside the caller's namespace")
	}

	switch direction {
	case domain.DirectionUpload:
		return allow()
	case domain.DirectionDownload:
		rec, err := a.records.Get(ctx, key)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return allow()
		case err != nil:
			commonlog.Warnf("authorize download of %s for %s: record lookup failed: %v", key, principal, err)
			return deny("ownership could not be verified")
		case rec.OwnerID != principal:
			return deny("file is owned by another principal")
		default:
			return allow()
		}
	default:
		return deny("unknown direction")
	}
}
