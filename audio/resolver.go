package audio

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// StreamResolver turns a script's stored audio into playable URLs. The
// transcoding pipeline and CDN are external; this only signs addresses.
type StreamResolver interface {
	ManifestURL(ctx context.Context, audioKey, quality, format string) (string, error)
	SegmentURL(ctx context.Context, audioKey string, segment int) (string, error)
}

// CDNResolver builds expiring URLs against a CDN/storage base URL, the
// layout the HLS pipeline writes: <base>/<key>/<quality>/playlist.m3u8 and
// numbered 10-second segments next to it.
type CDNResolver struct {
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewCDNResolver(baseURL string, ttl time.Duration) *CDNResolver {
	return &CDNResolver{baseURL: baseURL, ttl: ttl, now: time.Now}
}

func (r *CDNResolver) ManifestURL(_ context.Context, audioKey, quality, format string) (string, error) {
	name := "playlist.m3u8"
	if format == "mp3" {
		name = "audio.mp3"
	}
	return r.sign(fmt.Sprintf("%s/%s/%s/%s", r.baseURL, audioKey, quality, name))
}

func (r *CDNResolver) SegmentURL(_ context.Context, audioKey string, segment int) (string, error) {
	return r.sign(fmt.Sprintf("%s/%s/segment_%05d.ts", r.baseURL, audioKey, segment))
}

func (r *CDNResolver) sign(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("building stream url: %w", err)
	}
	q := u.Query()
	q.Set("expires", fmt.Sprintf("%d", r.now().Add(r.ttl).Unix()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
