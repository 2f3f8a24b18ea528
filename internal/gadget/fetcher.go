package gadget

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"gadgethost/pkg/logging"
)

type fetchedSpec struct {
	spec      *Spec
	fetchedAt time.Time
}

// RemoteFetcher downloads gadget specs from their app URL and keeps them for
// a fixed TTL. Concurrent fetches of one URL share a single request.
type RemoteFetcher struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	specs map[string]fetchedSpec
}

// NewRemoteFetcher creates a fetcher. A nil client gets a 10 second timeout.
func NewRemoteFetcher(client *http.Client, ttl time.Duration) *RemoteFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteFetcher{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		specs:  make(map[string]fetchedSpec),
	}
}

// Fetch returns the spec at appURL, from memory when it is still fresh.
func (f *RemoteFetcher) Fetch(ctx context.Context, appURL string) (*Spec, error) {
	if spec := f.cached(appURL); spec != nil {
		return spec, nil
	}

	v, err, shared := f.group.Do(appURL, func() (any, error) {
		if spec := f.cached(appURL); spec != nil {
			return spec, nil
		}
		spec, err := f.download(ctx, appURL)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.specs[appURL] = fetchedSpec{spec: spec, fetchedAt: f.now()}
		f.mu.Unlock()
		return spec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("Gadgets", "Shared in-flight fetch of %s", appURL)
	}
	return v.(*Spec), nil
}

func (f *RemoteFetcher) cached(appURL string) *Spec {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.specs[appURL]
	if !ok || f.now().Sub(e.fetchedAt) > f.ttl {
		return nil
	}
	return e.spec
}

func (f *RemoteFetcher) download(ctx context.Context, appURL string) (*Spec, error) {
	ctx, span := otel.Tracer("gadgethost/internal/gadget").Start(ctx, "gadget.fetch_spec")
	defer span.End()

	u, err := url.Parse(appURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gadget app url %q is not an absolute http url", appURL)
	}
	span.SetAttributes(attribute.String("gadget.host", u.Host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, appURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("fetch gadget spec %s: %w", appURL, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("fetch gadget spec %s: status %d", appURL, resp.StatusCode)
	}
	return ParseSpec(appURL, resp.Body)
}
