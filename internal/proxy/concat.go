package proxy

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"gadgethost/pkg/logging"
)

const defaultConcatType = "text/javascript; charset=utf-8"

// concatTypes are the media types rewriteMime may select. Anything the
// browser would render as a document is refused.
var concatTypes = map[string]bool{
	"text/javascript":        true,
	"application/javascript": true,
	"text/css":               true,
}

// ConcatHandler fetches the numbered url parameters (1=, 2=, ...) in
// parallel and writes their bodies in order. If any fetch fails the others
// are cancelled and nothing but the error is written.
type ConcatHandler struct {
	client  *http.Client
	maxBody int64
	maxURLs int
}

// NewConcatHandler creates the handler.
func NewConcatHandler(opts Options) *ConcatHandler {
	maxURLs := opts.ConcatMaxURLs
	if maxURLs <= 0 {
		maxURLs = 32
	}
	return &ConcatHandler{
		client:  opts.client(),
		maxBody: opts.maxBody(),
		maxURLs: maxURLs,
	}
}

func (h *ConcatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	urls, err := concatURLs(r.URL.Query(), h.maxURLs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	contentType, err := concatContentType(r.URL.Query().Get("rewriteMime"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "proxy.concat")
	defer span.End()
	span.SetAttributes(attribute.Int("concat.urls", len(urls)))

	bodies, err := h.fetchAll(ctx, urls)
	if err != nil {
		span.SetStatus(codes.Error, "concat fetch failed")
		logging.Warn("Proxy", "Concat of %d urls failed: %v", len(urls), err)
		http.Error(w, "Concat failed: an upstream resource could not be fetched", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	for i, b := range bodies {
		if i > 0 {
			_, _ = w.Write([]byte("\n"))
		}
		_, _ = w.Write(b)
	}
}

// fetchAll fetches every url under one errgroup. The first error cancels
// the shared context, which aborts every other in-flight request.
func (h *ConcatHandler) fetchAll(ctx context.Context, urls []*url.URL) ([][]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	bodies := make([][]byte, len(urls))
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			b, err := h.fetch(ctx, u)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Host, err)
			}
			bodies[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bodies, nil
}

func (h *ConcatHandler) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return readBody(resp, h.maxBody)
}

// concatContentType validates rewriteMime. Parameters other than the media
// type are dropped and the charset is always utf-8.
func concatContentType(rewrite string) (string, error) {
	if rewrite == "" {
		return defaultConcatType, nil
	}
	mediaType, _, err := mime.ParseMediaType(rewrite)
	if err != nil || !concatTypes[mediaType] {
		return "", fmt.Errorf("rewriteMime %q is not allowed", rewrite)
	}
	return mediaType + "; charset=utf-8", nil
}

// concatURLs returns the numbered url parameters in numeric order. Other
// parameters are ignored.
func concatURLs(q url.Values, limit int) ([]*url.URL, error) {
	type numbered struct {
		n   int
		raw string
	}
	var params []numbered
	for k, vs := range q {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 || len(vs) == 0 {
			continue
		}
		params = append(params, numbered{n, vs[0]})
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no urls to concatenate")
	}
	if len(params) > limit {
		return nil, fmt.Errorf("too many urls: %d > %d", len(params), limit)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].n < params[j].n })

	out := make([]*url.URL, len(params))
	for i, p := range params {
		u, err := parseTarget(p.raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", p.n, err)
		}
		out[i] = u
	}
	return out, nil
}
