// Package gmail implements the importer's message source on the Gmail API.
// Credentials live in the token store, written there by the OAuth consent
// flow; this package refreshes them as needed and persists refreshed tokens
// so the next run starts from a valid access token.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/importer"
	"github.com/cuotas-app/server/internal/logger"
)

// Config carries the OAuth client registered for the Gmail readonly scope.
type Config struct {
	ClientID     string
	ClientSecret string
}

// Source fetches bank notification emails over the Gmail API. Safe for
// concurrent use; one Gmail service is built per user and reused.
type Source struct {
	oauth  *oauth2.Config
	tokens importer.TokenStore

	mu       sync.Mutex
	services map[string]*gmailapi.Service
}

func NewSource(cfg Config, tokens importer.TokenStore) *Source {
	return &Source{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: []string{gmailapi.GmailReadonlyScope},
		},
		tokens:   tokens,
		services: make(map[string]*gmailapi.Service),
	}
}

// List returns the IDs of every message matching the query, following
// pagination to the end.
func (s *Source) List(ctx context.Context, userID, query string) ([]importer.MessageRef, error) {
	svc, err := s.service(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	var refs []importer.MessageRef
	call := svc.Users.Messages.List("me").Q(query)
	for {
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("List: querying messages: %w", err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, importer.MessageRef{ID: m.Id})
		}
		if resp.NextPageToken == "" {
			return refs, nil
		}
		call = call.PageToken(resp.NextPageToken)
	}
}

// Fetch downloads one message and returns its body decoded to text,
// preferring the HTML part over plain text.
func (s *Source) Fetch(ctx context.Context, userID, messageID string) (*importer.Message, error) {
	svc, err := s.service(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Fetch: getting message %s: %w", messageID, err)
	}

	body, err := Body(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("Fetch: decoding message %s: %w", messageID, err)
	}
	return &importer.Message{ID: msg.Id, Body: body}, nil
}

// Body walks the MIME tree for the first text/html part, falling back to
// text/plain, and base64url-decodes it. A message with neither yields "".
func Body(part *gmailapi.MessagePart) (string, error) {
	if part == nil {
		return "", nil
	}
	if html := findPart(part, "text/html"); html != nil {
		return decodePart(html)
	}
	if plain := findPart(part, "text/plain"); plain != nil {
		return decodePart(plain)
	}
	return "", nil
}

func findPart(part *gmailapi.MessagePart, mimeType string) *gmailapi.MessagePart {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return part
	}
	for _, child := range part.Parts {
		if found := findPart(child, mimeType); found != nil {
			return found
		}
	}
	return nil
}

func decodePart(part *gmailapi.MessagePart) (string, error) {
	// Gmail emits URL-safe base64, usually without padding.
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
	if err != nil {
		return "", fmt.Errorf("decodePart: %w", err)
	}
	return string(data), nil
}

// service returns the cached Gmail client for the user, building one on
// first use from their stored token.
func (s *Source) service(ctx context.Context, userID string) (*gmailapi.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[userID]; ok {
		return svc, nil
	}

	stored, err := s.tokens.Get(ctx, userID)
	if err != nil || stored == nil || stored.RefreshToken == "" {
		return nil, fmt.Errorf("service: no stored token for user: %w", importer.ErrReauthorizationRequired)
	}

	// The cached service outlives this request, so the token source and the
	// client must not hold the request context.
	baseCtx := context.Background()
	source := &persistingTokenSource{
		ctx:          baseCtx,
		userID:       userID,
		store:        s.tokens,
		log:          logger.FromContext(ctx),
		refreshToken: stored.RefreshToken,
		base: s.oauth.TokenSource(baseCtx, &oauth2.Token{
			AccessToken:  stored.AccessToken,
			RefreshToken: stored.RefreshToken,
			Expiry:       time.UnixMilli(stored.ExpiryDate),
		}),
		lastAccess: stored.AccessToken,
	}

	svc, err := gmailapi.NewService(baseCtx, option.WithTokenSource(oauth2.ReuseTokenSource(nil, source)))
	if err != nil {
		return nil, fmt.Errorf("service: building gmail client: %w", err)
	}
	s.services[userID] = svc
	return svc, nil
}

// persistingTokenSource refreshes through the wrapped source and writes every
// new access token back to the store. Only a refresh the authorization server
// rejects outright means the grant is gone; transport and server errors stay
// ordinary errors so callers retry them.
type persistingTokenSource struct {
	ctx          context.Context
	userID       string
	store        importer.TokenStore
	log          zerolog.Logger
	base         oauth2.TokenSource
	refreshToken string
	lastAccess   string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("Token: refresh rejected: %w", importer.ErrReauthorizationRequired)
		}
		return nil, fmt.Errorf("Token: refreshing access token: %w", err)
	}
	if tok.AccessToken != p.lastAccess {
		// Google omits the refresh token on refresh responses; keep the one
		// already on file.
		if tok.RefreshToken != "" {
			p.refreshToken = tok.RefreshToken
		}
		saveErr := p.store.Save(p.ctx, p.userID, &domain.EmailToken{
			AccessToken:  tok.AccessToken,
			RefreshToken: p.refreshToken,
			ExpiryDate:   tok.Expiry.UnixMilli(),
		})
		if saveErr != nil {
			p.log.Warn().Err(saveErr).Str("userId", p.userID).Msg("persisting refreshed token failed")
		}
		p.lastAccess = tok.AccessToken
	}
	return tok, nil
}
