// Package imagestore turns an uploaded sample image into the reference that
// is persisted alongside the record.
package imagestore

import (
	"context"
	"fmt"
	"strings"
)

// Store resolves an image to a URI readable by clients.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, image []byte, mime string) (string, error)
}

// Key names the object for one test of a sample location.
func Key(testID string, testNumber int, mime string) string {
	return fmt.Sprintf("samples/%s/%d%s", testID, testNumber, ext(mime))
}

func ext(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
