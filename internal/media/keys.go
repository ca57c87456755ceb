// Package media issues signed object storage URLs and fetches submitted
// media back for grading.
package media

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"inpeak-backend/internal/apperr"
)

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

var allowedExtensions = map[MediaType]map[string]bool{
	MediaAudio: {"mp3": true, "wav": true, "m4a": true, "webm": true},
	MediaVideo: {"mp4": true, "webm": true, "mov": true},
}

// ValidateExtension normalizes ext (lower case, no leading dot) and checks it
// against the media type.
func ValidateExtension(mediaType MediaType, ext string) (string, error) {
	exts, ok := allowedExtensions[mediaType]
	if !ok {
		return "", apperr.BadRequest("unsupported media type %q", mediaType)
	}
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if !exts[ext] {
		return "", apperr.BadRequest("unsupported %s extension %q", mediaType, ext)
	}
	return ext, nil
}

// ObjectKey builds "{mediaType}s/{memberId}/{yyMMdd}/{random10}.{ext}".
func ObjectKey(mediaType MediaType, memberID uint, ext string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%ss/%d/%s/%s.%s", mediaType, memberID, now.Format("060102"), random, ext)
}

// keyFromURL extracts the object key from an unsigned reference to bucket.
// Both path-style (host/bucket/key) and virtual-host-style (bucket.host/key)
// references are understood.
func keyFromURL(ref, bucket string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", false
	}
	path := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, bucket+".") && path != "" {
		return path, true
	}
	if key, ok := strings.CutPrefix(path, bucket+"/"); ok && key != "" {
		return key, true
	}
	return "", false
}
