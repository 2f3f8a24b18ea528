package gadget

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gadgethost/internal/oauth"
	"gadgethost/pkg/logging"
)

// Fetcher loads a spec that was not registered locally.
type Fetcher interface {
	Fetch(ctx context.Context, appURL string) (*Spec, error)
}

// Registry maps app URLs to parsed gadget specs and resolves their OAuth
// services for the flow controllers.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]*Spec
	remote Fetcher
}

// NewRegistry creates an empty registry. remote may be nil, in which case
// only registered specs are known.
func NewRegistry(remote Fetcher) *Registry {
	return &Registry{
		specs:  make(map[string]*Spec),
		remote: remote,
	}
}

// Register adds or replaces the spec for spec.AppURL.
func (r *Registry) Register(spec *Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.AppURL] = spec
}

// Specs returns the registered specs ordered by app URL.
func (r *Registry) Specs() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppURL < out[j].AppURL })
	return out
}

// Lookup returns the spec for appURL, fetching it when a remote fetcher is
// configured and the spec is not registered.
func (r *Registry) Lookup(ctx context.Context, appURL string) (*Spec, error) {
	r.mu.RLock()
	spec, ok := r.specs[appURL]
	r.mu.RUnlock()
	if ok {
		return spec, nil
	}
	if r.remote == nil {
		return nil, fmt.Errorf("%w: gadget %s is not registered", oauth.ErrServiceNotFound, appURL)
	}
	return r.remote.Fetch(ctx, appURL)
}

// LoadDirectory registers every *.xml file under dir. A file's app URL is
// baseURL joined with its path relative to dir. Files that fail to parse are
// skipped with a warning. A missing directory registers nothing.
func (r *Registry) LoadDirectory(dir, baseURL string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logging.Info("Gadgets", "Gadget directory %s does not exist, no specs loaded", dir)
		return 0, nil
	}

	base := strings.TrimSuffix(baseURL, "/")
	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		appURL := base + "/" + filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		spec, err := ParseSpec(appURL, f)
		f.Close()
		if err != nil {
			logging.Warn("Gadgets", "Skipping %s: %v", path, err)
			return nil
		}
		r.Register(spec)
		loaded++
		logging.Debug("Gadgets", "Registered %s (%d OAuth, %d OAuth2 services)", appURL, len(spec.Services), len(spec.Services2))
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("load gadget directory %s: %w", dir, err)
	}
	return loaded, nil
}

// ResolveService implements oauth.ServiceResolver.
func (r *Registry) ResolveService(ctx context.Context, appURL, name string) (oauth.ServiceDefinition, error) {
	spec, err := r.Lookup(ctx, appURL)
	if err != nil {
		return oauth.ServiceDefinition{}, err
	}
	return selectService(spec.Services, name, func(s oauth.ServiceDefinition) string { return s.Name })
}

// ResolveService2 implements oauth.ServiceResolver.
func (r *Registry) ResolveService2(ctx context.Context, appURL, name string) (oauth.Service2Definition, error) {
	spec, err := r.Lookup(ctx, appURL)
	if err != nil {
		return oauth.Service2Definition{}, err
	}
	return selectService(spec.Services2, name, func(s oauth.Service2Definition) string { return s.Name })
}

// selectService picks the service called name. An empty name is only
// accepted when exactly one service is declared.
func selectService[T any](services []T, name string, nameOf func(T) string) (T, error) {
	var zero T
	if name == "" {
		switch len(services) {
		case 0:
			return zero, oauth.ErrServiceNotFound
		case 1:
			return services[0], nil
		default:
			names := make([]string, len(services))
			for i, s := range services {
				names[i] = nameOf(s)
			}
			return zero, fmt.Errorf("%w: choose one of %s", oauth.ErrAmbiguousService, strings.Join(names, ", "))
		}
	}
	for _, s := range services {
		if nameOf(s) == name {
			return s, nil
		}
	}
	return zero, fmt.Errorf("%w: %q", oauth.ErrServiceNotFound, name)
}
