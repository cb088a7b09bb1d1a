// Package codesystem is the read-only resource store seam: it resolves
// CodeSystem resources by canonical URL for the import engine. Resources are
// created and maintained elsewhere; this service only ever reads them.
package codesystem

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/backends/cache"
	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
)

var (
	// ErrNotFound - zero code systems match the given canonical URL.
	ErrNotFound = errors.New("code system not found")

	// ErrAmbiguous - more than one code system matches the given canonical
	// URL. Ambiguous URIs are caller error, not engine error.
	ErrAmbiguous = errors.New("code system URL is ambiguous")
)

type ICodeSystem interface {
	FindByURL(ctx context.Context, url string) (*CodeSystem, error)
}

// Backend is the slice of the query layer this service reads through.
// Satisfied by *db.DB.
type Backend interface {
	ListCodeSystemsByURL(ctx context.Context, url string) ([]termsql.CodeSystem, error)
}

type Service struct {
	opts *Options
	log  *zap.Logger
}

type Options struct {
	Backend Backend
	Cache   cache.ICache
	Log     *zap.Logger
}

func New(opts *Options) (*Service, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Service{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "codesystem")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Backend == nil {
		return errors.New("backend cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	return nil
}

// FindByURL resolves the single code system with the given canonical URL.
// Successful lookups are memoized briefly; not-found and ambiguous results
// are never cached.
func (s *Service) FindByURL(ctx context.Context, url string) (*CodeSystem, error) {
	logger := s.log.With(zap.String("method", "FindByURL"), zap.String("url", url))

	if url == "" {
		return nil, ErrNotFound
	}

	if s.opts.Cache != nil {
		if cached, ok := s.opts.Cache.Get(cache.CodeSystemKey(url)); ok {
			if cs, ok := cached.(*CodeSystem); ok {
				return cs, nil
			}
		}
	}

	rows, err := s.opts.Backend.ListCodeSystemsByURL(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query code systems")
	}

	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
		// fallthrough below
	default:
		logger.Warn("Multiple code systems share one URL", zap.Int("count", len(rows)))
		return nil, ErrAmbiguous
	}

	cs, err := fromRow(rows[0])
	if err != nil {
		return nil, err
	}

	if s.opts.Cache != nil {
		s.opts.Cache.Set(cache.CodeSystemKey(url), cs, cache.DefaultCodeSystemTTL)
	}

	logger.Debug("Resolved code system", zap.String("id", cs.ID.String()))

	return cs, nil
}
