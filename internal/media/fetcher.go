package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"inpeak-backend/internal/apperr"
)

type FetcherOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	// SignTTL is the lifetime of the download URL signed for each fetch.
	SignTTL time.Duration
}

// Fetcher downloads submitted media. References are stored unsigned, so a
// fresh download URL is signed for each fetch when the reference points into
// the configured bucket.
type Fetcher struct {
	http      *http.Client
	presigner Presigner
	opts      FetcherOptions
	log       *zap.Logger
}

func NewFetcher(httpClient *http.Client, presigner Presigner, opts FetcherOptions, log *zap.Logger) *Fetcher {
	if opts.SignTTL <= 0 {
		opts.SignTTL = 5 * time.Minute
	}
	return &Fetcher{http: httpClient, presigner: presigner, opts: opts, log: log.Named("fetcher")}
}

func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	target := ref
	if f.presigner != nil {
		if key, ok := f.presigner.ObjectKey(ref); ok {
			signed, err := f.presigner.PresignDownload(ctx, key, f.opts.SignTTL)
			if err != nil {
				return nil, apperr.DownloadFailure(err, "sign download for %s", key)
			}
			target = signed
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperr.DownloadFailure(err, "build request for %s", ref)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, apperr.DownloadFailure(err, "download %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.DownloadFailure(fmt.Errorf("status %d", resp.StatusCode), "download %s", ref)
	}

	body := io.Reader(resp.Body)
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperr.DownloadFailure(err, "read %s", ref)
	}
	if f.opts.MaxBytes > 0 && int64(len(data)) > f.opts.MaxBytes {
		return nil, apperr.DownloadFailure(fmt.Errorf("more than %d bytes", f.opts.MaxBytes), "download %s", ref)
	}
	f.log.Debug("media fetched", zap.String("ref", ref), zap.Int("bytes", len(data)))
	return data, nil
}
