package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/pkg/logger_i"
)

// Registry enumerates the collections held by the local and remote stores.
// Either store may be nil when that side is not configured.
type Registry struct {
	local    vectorDB.Store
	remote   vectorDB.Store
	settings *config.Settings
	logger   *logger_i.Logger
}

func New(local, remote vectorDB.Store, settings *config.Settings) *Registry {
	return &Registry{
		local:    local,
		remote:   remote,
		settings: settings,
		logger:   logger_i.NewLogger("SourceRegistry"),
	}
}

func (r *Registry) Local() vectorDB.Store  { return r.local }
func (r *Registry) Remote() vectorDB.Store { return r.remote }

func (r *Registry) ListLocal(ctx context.Context) ([]string, error) {
	return list(ctx, r.local)
}

func (r *Registry) ListRemote(ctx context.Context) ([]string, error) {
	return list(ctx, r.remote)
}

func list(ctx context.Context, s vectorDB.Store) ([]string, error) {
	if s == nil {
		return []string{}, nil
	}
	names, err := s.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// RefreshCache writes the current local and remote lists into the settings
// file. A remote listing failure keeps the previously cached remote names and
// is returned after the local list has been saved.
func (r *Registry) RefreshCache(ctx context.Context) error {
	if r.settings == nil {
		return nil
	}
	log := r.logger.WithTrace(ctx)

	var errs []error
	if local, err := r.ListLocal(ctx); err != nil {
		errs = append(errs, fmt.Errorf("listing local sources: %w", err))
	} else {
		r.settings.LocalSources = local
	}
	if remote, err := r.ListRemote(ctx); err != nil {
		log.Warn("remote listing failed, keeping cached names", "error", err)
		errs = append(errs, fmt.Errorf("listing remote sources: %w", err))
	} else {
		r.settings.RemoteSources = remote
	}
	if err := r.settings.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cached returns the advisory lists from the last refresh.
func (r *Registry) Cached() (local, remote []string) {
	if r.settings == nil {
		return nil, nil
	}
	return r.settings.LocalSources, r.settings.RemoteSources
}

// Snapshot is the live view of both catalogs at one moment.
type Snapshot struct {
	Local  map[string]bool
	Remote map[string]bool
	// RemoteErr is set when the remote catalog could not be read.
	RemoteErr error
}

// Snapshot fetches both live lists once. A local listing error is fatal; a
// remote one is recorded so local-only retrievals still work.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	local, err := r.ListLocal(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local sources: %w", err)
	}
	snap := &Snapshot{Local: toSet(local), Remote: map[string]bool{}}
	remote, err := r.ListRemote(ctx)
	if err != nil {
		r.logger.WithTrace(ctx).Warn("remote listing failed", "error", err)
		snap.RemoteErr = err
	} else {
		snap.Remote = toSet(remote)
	}
	return snap, nil
}

// Classify reports where name lives. Local wins when a name exists on both
// sides.
func (s *Snapshot) Classify(name string) commonModels.Location {
	switch {
	case s.Local[name]:
		return commonModels.LocationLocal
	case s.Remote[name]:
		return commonModels.LocationRemote
	}
	return commonModels.LocationUnknown
}

// Validate returns an *InvalidSourceError naming every unknown source.
func (s *Snapshot) Validate(names []string) error {
	var unknown []string
	for _, n := range names {
		if s.Classify(n) == commonModels.LocationUnknown {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	if s.RemoteErr != nil {
		return fmt.Errorf("%w (remote catalog unavailable: %v)", &commonModels.InvalidSourceError{Unknown: unknown, Valid: s.All()}, s.RemoteErr)
	}
	return &commonModels.InvalidSourceError{Unknown: unknown, Valid: s.All()}
}

// All lists every known name once, sorted.
func (s *Snapshot) All() []string {
	seen := make(map[string]bool, len(s.Local)+len(s.Remote))
	for n := range s.Local {
		seen[n] = true
	}
	for n := range s.Remote {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Classify(ctx context.Context, name string) (commonModels.Location, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return commonModels.LocationUnknown, err
	}
	return snap.Classify(name), nil
}

func (r *Registry) Validate(ctx context.Context, names []string) error {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	return snap.Validate(names)
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// FixName turns a path, URL or alias into a collection name. URLs lose their
// scheme, then spaces and slashes become underscores and a single leading
// underscore is dropped.
func FixName(raw string) string {
	name := strings.TrimSpace(raw)
	if u, err := url.Parse(name); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		name = strings.TrimSuffix(u.Host+u.EscapedPath(), "/")
		if u.RawQuery != "" {
			name += "_" + u.RawQuery
		}
	}
	name = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
	return strings.TrimPrefix(name, "_")
}
