package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/importer"
)

// TokenRepository persists the Gmail OAuth credential per user. A missing
// document means the user never connected their mailbox, or revoked it;
// either way the import path treats it as needing reauthorization.
type TokenRepository struct {
	client *firestore.Client
}

func NewTokenRepository(client *firestore.Client) *TokenRepository {
	return &TokenRepository{client: client}
}

func (r *TokenRepository) Get(ctx context.Context, userID string) (*domain.EmailToken, error) {
	doc, err := tokenDoc(r.client, userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("Get: no token for user: %w", importer.ErrReauthorizationRequired)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: reading token: %w", err)
	}

	var token domain.EmailToken
	if err := doc.DataTo(&token); err != nil {
		return nil, fmt.Errorf("Get: decoding token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) Save(ctx context.Context, userID string, token *domain.EmailToken) error {
	if _, err := tokenDoc(r.client, userID).Set(ctx, token); err != nil {
		return fmt.Errorf("Save: writing token: %w", err)
	}
	return nil
}
