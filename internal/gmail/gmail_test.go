package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/cuotas-app/server/internal/domain"
	"github.com/cuotas-app/server/internal/importer"
)

func encoded(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestBody_PrefersHTMLOverPlainText(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: encoded("plain version")},
			},
			{
				MimeType: "text/html",
				Body:     &gmailapi.MessagePartBody{Data: encoded("<p>html version</p>")},
			},
		},
	}

	body, err := Body(payload)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body != "<p>html version</p>" {
		t.Errorf("Body = %q, want the html part", body)
	}
}

func TestBody_NestedMultipart(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{
						MimeType: "text/html",
						Body:     &gmailapi.MessagePartBody{Data: encoded("nested html")},
					},
				},
			},
		},
	}

	body, err := Body(payload)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body != "nested html" {
		t.Errorf("Body = %q, want nested html part", body)
	}
}

func TestBody_PlainTextFallback(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "text/plain",
		Body:     &gmailapi.MessagePartBody{Data: encoded("compra por $1.000")},
	}

	body, err := Body(payload)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body != "compra por $1.000" {
		t.Errorf("Body = %q", body)
	}
}

func TestBody_PaddedBase64(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("padded content"))
	payload := &gmailapi.MessagePart{
		MimeType: "text/html",
		Body:     &gmailapi.MessagePartBody{Data: padded},
	}

	body, err := Body(payload)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body != "padded content" {
		t.Errorf("Body = %q, want decoded padded input", body)
	}
}

func TestBody_NoTextParts(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "application/pdf",
				Body:     &gmailapi.MessagePartBody{Data: encoded("%PDF-")},
			},
		},
	}

	body, err := Body(payload)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body != "" {
		t.Errorf("Body = %q, want empty for a message without text parts", body)
	}
}

type tokenStoreRecorder struct {
	saved   *domain.EmailToken
	saveErr error
}

func (r *tokenStoreRecorder) Get(_ context.Context, _ string) (*domain.EmailToken, error) {
	return r.saved, nil
}

func (r *tokenStoreRecorder) Save(_ context.Context, _ string, token *domain.EmailToken) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = token
	return nil
}

type staticTokenSource struct {
	token *oauth2.Token
	err   error
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	return s.token, s.err
}

func TestToken_InvalidGrantRequiresReauthorization(t *testing.T) {
	source := &persistingTokenSource{
		ctx:    context.Background(),
		userID: "user-1",
		store:  &tokenStoreRecorder{},
		log:    zerolog.Nop(),
		base:   &staticTokenSource{err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}},
	}

	_, err := source.Token()
	if !errors.Is(err, importer.ErrReauthorizationRequired) {
		t.Fatalf("err = %v, want ErrReauthorizationRequired", err)
	}
}

func TestToken_TransientFailureIsNotReauthorization(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"network error", errors.New("dial tcp: connection refused")},
		{"canceled context", context.Canceled},
		{"server error", &oauth2.RetrieveError{ErrorCode: "temporarily_unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &persistingTokenSource{
				ctx:    context.Background(),
				userID: "user-1",
				store:  &tokenStoreRecorder{},
				log:    zerolog.Nop(),
				base:   &staticTokenSource{err: tt.err},
			}

			_, err := source.Token()
			if err == nil {
				t.Fatal("want an error")
			}
			if errors.Is(err, importer.ErrReauthorizationRequired) {
				t.Errorf("err = %v, must not be ErrReauthorizationRequired", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want the underlying cause preserved", err)
			}
		})
	}
}

func TestToken_PersistsRefreshedTokenKeepingRefreshToken(t *testing.T) {
	store := &tokenStoreRecorder{}
	expiry := time.Now().Add(time.Hour)
	source := &persistingTokenSource{
		ctx:          context.Background(),
		userID:       "user-1",
		store:        store,
		log:          zerolog.Nop(),
		refreshToken: "refresh-on-file",
		base: &staticTokenSource{token: &oauth2.Token{
			AccessToken: "fresh-access",
			Expiry:      expiry,
		}},
		lastAccess: "stale-access",
	}

	tok, err := source.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "fresh-access" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if store.saved == nil {
		t.Fatal("refreshed token not persisted")
	}
	if store.saved.RefreshToken != "refresh-on-file" {
		t.Errorf("RefreshToken = %q, want the one on file kept", store.saved.RefreshToken)
	}
	if store.saved.ExpiryDate != expiry.UnixMilli() {
		t.Errorf("ExpiryDate = %d, want %d", store.saved.ExpiryDate, expiry.UnixMilli())
	}
}

func TestToken_SaveFailureIsNotFatal(t *testing.T) {
	source := &persistingTokenSource{
		ctx:    context.Background(),
		userID: "user-1",
		store:  &tokenStoreRecorder{saveErr: errors.New("firestore unavailable")},
		log:    zerolog.Nop(),
		base: &staticTokenSource{token: &oauth2.Token{
			AccessToken: "fresh-access",
			Expiry:      time.Now().Add(time.Hour),
		}},
		lastAccess: "stale-access",
	}

	tok, err := source.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "fresh-access" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
}
