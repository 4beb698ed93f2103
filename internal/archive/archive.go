// Package archive keeps raw bank email bodies in Cloud Storage so a changed
// extraction pattern can be replayed over past messages without touching
// Gmail again. Objects live at users/{userID}/raw/{messageID}.html.
package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// GCSArchiver writes message bodies to one bucket. Assumes Application
// Default Credentials.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket}
}

// ObjectName returns the archive path for one message.
func ObjectName(userID, messageID string) string {
	return fmt.Sprintf("users/%s/raw/%s.html", userID, messageID)
}

// Archive uploads one message body, overwriting any previous copy of the
// same message.
func (a *GCSArchiver) Archive(ctx context.Context, userID, messageID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(ObjectName(userID, messageID)).NewWriter(ctx)
	w.ContentType = "text/html; charset=utf-8"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("Archive: writing %s: %w", messageID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Archive: finalizing %s: %w", messageID, err)
	}
	return nil
}

// Fetch reads one archived body back, for replaying extraction.
func (a *GCSArchiver) Fetch(ctx context.Context, userID, messageID string) ([]byte, error) {
	r, err := a.client.Bucket(a.bucket).Object(ObjectName(userID, messageID)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: opening %s: %w", messageID, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading %s: %w", messageID, err)
	}
	return body, nil
}
