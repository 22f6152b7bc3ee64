package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// TeamLogoKey строит ключ объекта для логотипа команды. Метка времени
// меняет ключ при каждой загрузке, поэтому CDN не отдаёт старый файл.
func TeamLogoKey(teamID int, ext string, now time.Time) string {
	return path.Join("teams", fmt.Sprintf("%d", teamID), fmt.Sprintf("logo_%d%s", now.Unix(), ext))
}
