package service

import (
	"context"

	"s4/server/common/apperr"
	commonauth "s4/server/common/auth"
	"s4/server/files/domain"
	"s4/server/files/repository"
)

type recordLister interface {
	List(ctx context.Context, ownerID string, after *repository.Cursor, limit int) (repository.Page, error)
}

type ListResult struct {
	Files         []domain.FileRecord `json:"files"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

// Lister pages through the caller's own records. Continuation tokens are signed and bound
// to the owner they were issued for.
type Lister struct {
	records recordLister
	tokens  *commonauth.PageTokenSigner
}

func NewLister(records recordLister, tokens *commonauth.PageTokenSigner) *Lister {
	return &Lister{records: records, tokens: tokens}
}

func (l *Lister) List(ctx context.Context, principal, pageToken string, limit int) (ListResult, error) {
	if principal == "" {
		return ListResult{}, apperr.AuthorizationDenied.New("no authenticated principal")
	}

	var after *repository.Cursor
	if pageToken != "" {
		claims, err := l.tokens.Verify(pageToken)
		if err != nil {
			return ListResult{}, apperr.InvalidInput.New("page token: %v", err)
		}
		if claims.Owner != principal {
			return ListResult{}, apperr.InvalidInput.New("page token was issued to another principal")
		}
		after = &repository.Cursor{UploadedAt: claims.UploadedAt, Key: claims.Key}
	}

	page, err := l.records.List(ctx, principal, after, repository.ClampLimit(limit))
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Files: page.Records}
	if result.Files == nil {
		result.Files = []domain.FileRecord{}
	}
	if page.Next != nil {
		token, err := l.tokens.Sign(principal, page.Next.UploadedAt, page.Next.Key)
		if err != nil {
			return ListResult{}, err
		}
		result.NextPageToken = token
	}
	return result, nil
}
