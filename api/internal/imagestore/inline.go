package imagestore

import (
	"context"
	"encoding/base64"

	"truewater/api/internal/util"
)

// Inline embeds the image in the record as a data URI.
type Inline struct{}

func (Inline) Name() string { return "inline" }

func (Inline) Put(_ context.Context, _ string, image []byte, mime string) (string, error) {
	return util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(image)), nil
}
