package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nodewar-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu    sync.Mutex
	calls []time.Time
	fn    func(call int, nick string) (domain.Identity, error)
}

func (f *fakeLookup) Lookup(ctx context.Context, nick string) (domain.Identity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	call := len(f.calls)
	f.mu.Unlock()
	return f.fn(call, nick)
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testOptions() Options {
	return Options{
		Retries:    2,
		Throttle:   10 * time.Millisecond,
		BatchSize:  10,
		BatchDelay: 5 * time.Millisecond,
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Alice", Sanitize("Alice"))
	assert.Equal(t, "Alice Bob", Sanitize("  Alice   Bob  "))
	assert.Equal(t, "Dark_Knight-1", Sanitize("Dark_Knight-1!"))
	assert.Equal(t, "Aelir", Sanitize("Aelir✨"))
	assert.Equal(t, "", Sanitize("★☆!!"))
}

func TestResolveCachesWithinRun(t *testing.T) {
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		return domain.Identity{Class: "Wizard", Family: "StormVale"}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	first, err := r.Resolve(context.Background(), "Alice")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "Alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Wizard", first.Class)
	assert.Equal(t, domain.SourceLookup, first.Source)
	assert.Equal(t, 1, fake.callCount(), "repeat lookups must hit the cache")
}

func TestResolveRetriesWithIncreasingBackoff(t *testing.T) {
	fake := &fakeLookup{fn: func(call int, _ string) (domain.Identity, error) {
		if call <= 2 {
			return domain.Identity{}, errors.New("connection reset")
		}
		return domain.Identity{Class: "Ranger", Family: "WindRow"}, nil
	}}
	opts := testOptions()
	opts.Throttle = 100 * time.Millisecond
	r := New(fake, opts, zerolog.Nop())

	id, err := r.Resolve(context.Background(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Ranger", id.Class)
	require.Equal(t, 3, fake.callCount())

	gap1 := fake.calls[1].Sub(fake.calls[0])
	gap2 := fake.calls[2].Sub(fake.calls[1])
	assert.GreaterOrEqual(t, gap1, 80*time.Millisecond)
	assert.Greater(t, gap2, gap1, "backoff must strictly increase between attempts")
}

func TestResolveExhaustedRetriesReturnsLookupFailed(t *testing.T) {
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		return domain.Identity{}, errors.New("boom")
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	_, err := r.Resolve(context.Background(), "Carol")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLookupFailed)
	assert.Equal(t, 3, fake.callCount(), "initial attempt plus two retries")
}

func TestResolveNotFoundIsDataNotError(t *testing.T) {
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		return domain.Identity{Class: "", Family: ""}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	id, err := r.Resolve(context.Background(), "Dana")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceNotFound, id.Source)
	// Not-found attempts retry before settling, and the answer is cached.
	assert.Equal(t, 3, fake.callCount())

	_, err = r.Resolve(context.Background(), "Dana")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.callCount(), "not-found sentinel must come from cache")
}

func TestResolveNotFoundMarkerString(t *testing.T) {
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		return domain.Identity{Class: "Wizard", Family: "Perfil não encontrado"}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	id, err := r.Resolve(context.Background(), "Eve")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceNotFound, id.Source)
}

func TestResolveEmptyAfterSanitization(t *testing.T) {
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		t.Fatal("lookup must not be called for an empty sanitized nick")
		return domain.Identity{}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	id, err := r.Resolve(context.Background(), "★☆")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceNotFound, id.Source)
	assert.Zero(t, fake.callCount())
}

func TestResolveDeduplicatesConcurrentRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fake := &fakeLookup{fn: func(int, string) (domain.Identity, error) {
		once.Do(func() { close(started) })
		<-release
		return domain.Identity{Class: "Witch", Family: "Hexen"}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]domain.Identity, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "Frey")
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, 1, fake.callCount(), "in-flight lookups for one key must be shared")
	for _, id := range results {
		assert.Equal(t, "Witch", id.Class)
	}
}

func TestResolveBatch(t *testing.T) {
	fake := &fakeLookup{fn: func(_ int, nick string) (domain.Identity, error) {
		if nick == "Broken" {
			return domain.Identity{}, errors.New("boom")
		}
		return domain.Identity{Class: "Musa", Family: "Fam_" + nick}, nil
	}}
	r := New(fake, testOptions(), zerolog.Nop())

	nicks := []string{"A", "B", "C", "Broken", "D", "E", "F", "G", "H", "I", "J", "K"}
	results, failures := r.ResolveBatch(context.Background(), nicks)

	assert.Len(t, results, len(nicks)-1)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures["Broken"], domain.ErrLookupFailed)
	assert.Equal(t, "Fam_K", results["K"].Family)
}

func TestResolveBatchHonorsCancellation(t *testing.T) {
	fake := &fakeLookup{fn: func(_ int, nick string) (domain.Identity, error) {
		return domain.Identity{Class: "Musa", Family: "Fam_" + nick}, nil
	}}
	opts := testOptions()
	opts.BatchSize = 1
	opts.BatchDelay = 50 * time.Millisecond
	r := New(fake, opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, failures := r.ResolveBatch(ctx, []string{"A", "B", "C"})
	// At most the first window runs; the cancelled context stops the rest.
	assert.Equal(t, 3, len(results)+len(failures))
	assert.GreaterOrEqual(t, len(failures), 2)
	assert.Contains(t, failures, "C")
}

func TestIsPlaceholderFamily(t *testing.T) {
	assert.True(t, IsPlaceholderFamily(""))
	assert.True(t, IsPlaceholderFamily("Family123"))
	assert.False(t, IsPlaceholderFamily("Family_123"))
	assert.False(t, IsPlaceholderFamily("StormVale"))
}
