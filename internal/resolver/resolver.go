package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"nodewar-tracker/internal/api"
	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/constants"
	"nodewar-tracker/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

// Lookup is the black-box external identity source.
type Lookup interface {
	Lookup(ctx context.Context, nick string) (domain.Identity, error)
}

// APILookup adapts the profile client to the Lookup interface.
type APILookup struct {
	client *api.LookupClient
}

func NewAPILookup(client *api.LookupClient) *APILookup {
	return &APILookup{client: client}
}

func (a *APILookup) Lookup(ctx context.Context, nick string) (domain.Identity, error) {
	profile, err := a.client.GetProfile(ctx, nick)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Class: profile.Classe, Family: profile.Familia}, nil
}

type Options struct {
	Retries    int
	Throttle   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

func DefaultOptions(slowMode bool) Options {
	if slowMode {
		return Options{
			Retries:    constants.SlowResolveRetries,
			Throttle:   constants.ResolveThrottle,
			BatchSize:  constants.SlowResolveBatchSize,
			BatchDelay: constants.SlowResolveBatchDelay,
		}
	}
	return Options{
		Retries:    constants.ResolveRetries,
		Throttle:   constants.ResolveThrottle,
		BatchSize:  constants.ResolveBatchSize,
		BatchDelay: constants.ResolveBatchDelay,
	}
}

// Resolver resolves nicknames to {class, family} with a per-run cache,
// retry/backoff over the fallible source, and windowed batch concurrency.
// It holds all of its throttle state; nothing here is process-global.
type Resolver struct {
	lookup Lookup
	opts   Options
	logger zerolog.Logger

	mu     sync.RWMutex
	cache  map[string]domain.Identity
	flight singleflight.Group
}

func New(lookup Lookup, opts Options, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		opts:   opts,
		logger: logger,
		cache:  make(map[string]domain.Identity),
	}
}

func NewFromConfig(client *api.LookupClient, cfg *config.Config, logger zerolog.Logger) *Resolver {
	return New(NewAPILookup(client), DefaultOptions(cfg.SlowMode), logger)
}

var (
	notFoundMarkers     = []string{"not found", "não encontrado", "nao encontrado"}
	placeholderFamilyRe = regexp.MustCompile(`^Family\d+$`)
)

// Sanitize normalizes a raw nickname: NFKC, strip anything outside
// letters/digits/underscore/hyphen/space, collapse whitespace.
func Sanitize(nick string) string {
	normalized := norm.NFKC.String(nick)
	var b strings.Builder
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsNotFound reports whether a lookup answer is the source's "no such
// adventurer" shape: an empty field or a locale-specific marker.
func IsNotFound(id domain.Identity) bool {
	if id.Class == "" || id.Family == "" {
		return true
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(strings.ToLower(id.Class), marker) ||
			strings.Contains(strings.ToLower(id.Family), marker) {
			return true
		}
	}
	return false
}

// IsPlaceholderFamily detects the source's stale "Family<N>" filler values,
// which must be treated as ambiguous rather than authoritative.
func IsPlaceholderFamily(family string) bool {
	return family == "" || placeholderFamilyRe.MatchString(family)
}

var errNotFound = errors.New("adventurer not found")

// Resolve returns the identity for one nickname, from cache when possible.
// Concurrent calls for the same key share a single in-flight lookup. A
// not-found answer is data; only exhausted retries on a hard error return
// domain.ErrLookupFailed.
func (r *Resolver) Resolve(ctx context.Context, nick string) (domain.Identity, error) {
	key := Sanitize(nick)
	if key == "" {
		return domain.Identity{Source: domain.SourceNotFound}, nil
	}

	if id, ok := r.cached(key); ok {
		return id, nil
	}

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		if id, ok := r.cached(key); ok {
			return id, nil
		}
		id, err := r.resolveWithRetry(ctx, key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return v.(domain.Identity), nil
}

func (r *Resolver) cached(key string) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[key]
	return id, ok
}

func (r *Resolver) resolveWithRetry(ctx context.Context, nick string) (domain.Identity, error) {
	var last domain.Identity
	attempt := 0

	operation := func() error {
		attempt++
		lookupCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
		defer cancel()

		id, err := r.lookup.Lookup(lookupCtx, nick)
		if err != nil {
			r.logger.Warn().Err(err).Str("nick", nick).Int("attempt", attempt).Msg("identity lookup failed")
			return err
		}
		if IsNotFound(id) {
			last = domain.Identity{Class: id.Class, Family: id.Family, Source: domain.SourceNotFound}
			return errNotFound
		}
		last = id
		last.Source = domain.SourceLookup
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.Throttle
	b.Multiplier = 2.0
	// Bounded jitter: successive sleep ranges must not overlap so backoff
	// stays strictly increasing.
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(r.opts.Retries)))
	if err != nil {
		if errors.Is(err, errNotFound) {
			// Not found after all retries is a valid answer, not a failure.
			return last, nil
		}
		return domain.Identity{}, fmt.Errorf("%w: %s: %v", domain.ErrLookupFailed, nick, err)
	}
	return last, nil
}

// ResolveBatch resolves nicknames in fixed-size windows, all lookups within a
// window running concurrently, with an inter-window pause to respect the
// source's rate limits. Failed nicknames are reported individually; one bad
// nickname never fails the batch.
func (r *Resolver) ResolveBatch(ctx context.Context, nicks []string) (map[string]domain.Identity, map[string]error) {
	results := make(map[string]domain.Identity, len(nicks))
	failures := make(map[string]error)
	var mu sync.Mutex

	size := r.opts.BatchSize
	if size < 1 {
		size = 1
	}

	for start := 0; start < len(nicks); start += size {
		end := start + size
		if end > len(nicks) {
			end = len(nicks)
		}

		g := new(errgroup.Group)
		for _, nick := range nicks[start:end] {
			g.Go(func() error {
				id, err := r.Resolve(ctx, nick)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[nick] = err
					return nil
				}
				results[nick] = id
				return nil
			})
		}
		_ = g.Wait()

		if end < len(nicks) {
			select {
			case <-ctx.Done():
				for _, nick := range nicks[end:] {
					failures[nick] = ctx.Err()
				}
				return results, failures
			case <-time.After(r.opts.BatchDelay):
			}
		}
	}

	r.logger.Debug().
		Int("resolved", len(results)).
		Int("failed", len(failures)).
		Int("total", len(nicks)).
		Msg("batch resolution completed")

	return results, failures
}
