package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/domain"
	"nodewar-tracker/internal/resolver"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLookup struct {
	identities map[string]domain.Identity
	err        error
}

func (s *staticLookup) Lookup(ctx context.Context, nick string) (domain.Identity, error) {
	if s.err != nil {
		return domain.Identity{}, s.err
	}
	if id, ok := s.identities[nick]; ok {
		return id, nil
	}
	return domain.Identity{Class: "Wizard", Family: "Fam_" + nick}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		HomeGuild:      "Allyance",
		RivalGuild:     "Chernobyl",
		AllianceGuilds: []string{"Allyance", "Vennyance", "Ironroot"},
	}
}

func fastOptions() resolver.Options {
	return resolver.Options{
		Retries:    1,
		Throttle:   time.Millisecond,
		BatchSize:  10,
		BatchDelay: time.Millisecond,
	}
}

func newTestPipeline(lookup resolver.Lookup) *Pipeline {
	res := resolver.New(lookup, fastOptions(), zerolog.Nop())
	return NewPipeline(res, testConfig(), zerolog.Nop())
}

const warLog = "Node war has started.\n" +
	"[20:00:01] Alice has killed Bob from Chernobyl \n" +
	"[20:00:11] Alice died to Rex from Chernobyl \n" +
	"[20:00:31] Dave has killed Kim from Valencia \n"

func TestPipelineProcess(t *testing.T) {
	p := newTestPipeline(&staticLookup{})

	log, err := p.Process(context.Background(), warLog, domain.LogMetadata{
		Territory: "Calpheon",
		NodeName:  "Oze Pass",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Allyance", "Chernobyl", "Valencia"}, log.Guilds)
	assert.False(t, log.Degraded)
	assert.Equal(t, "Calpheon", log.Territory)

	// Home roster: Alice and Dave.
	assert.Equal(t, 2, log.TotalGeral)
	require.Len(t, log.TotalPorClasse, 1)
	assert.Equal(t, domain.ClassCount{Classe: "Wizard", Count: 2}, log.TotalPorClasse[0])
	assert.Len(t, log.Classes["Wizard"], 2)

	assert.Equal(t, 2, log.KillsByGuild["Allyance"])
	assert.Equal(t, 1, log.KillsByGuild["Chernobyl"])
	assert.Equal(t, 1, log.DeathsByGuild["Allyance"])
	assert.Equal(t, 1, log.KillsMatrix["Allyance"]["Chernobyl"])
	assert.Equal(t, 1, log.KillsMatrix["Allyance"]["Valencia"])
	assert.Equal(t, 1, log.KillsMatrix["Chernobyl"]["Allyance"])

	assert.Equal(t, domain.KD(2, 1), log.KDRatioByGuild["Allyance"])
	assert.Equal(t, domain.KD(1, 1), log.KDRatioByGuild["Chernobyl"])

	alice := log.PlayerStatsByGuild["Allyance"]["Alice"]
	require.NotNil(t, alice)
	assert.Equal(t, "Fam_Alice", alice.Family)
	assert.Equal(t, domain.SourceLookup, alice.IdentitySource)
	assert.Equal(t, 1, alice.KillsVsRival)
	assert.Equal(t, 1, alice.DeathsVsRival)

	// Timeline: Allyance owns the first interval (its kill at 20:00:01),
	// Chernobyl the second (Rex's kill at 20:00:11).
	assert.Equal(t, 30, log.TotalNodeSeconds)
	assert.Equal(t, 10, log.OccupancyByGuild["Allyance"])
	assert.Equal(t, 20, log.OccupancyByGuild["Chernobyl"])
}

func TestPipelineStatInvariants(t *testing.T) {
	p := newTestPipeline(&staticLookup{})

	log, err := p.Process(context.Background(), warLog, domain.LogMetadata{})
	require.NoError(t, err)

	for guild, stats := range log.PlayerStatsByGuild {
		for nick, stat := range stats {
			assert.Equal(t, stat.Kills, stat.KillsVsRival+stat.KillsVsOthers, "%s/%s", guild, nick)
			assert.Equal(t, stat.Deaths, stat.DeathsVsRival+stat.DeathsVsOthers, "%s/%s", guild, nick)
		}
	}
}

func TestPipelineFallbackOnLookupFailure(t *testing.T) {
	p := newTestPipeline(&staticLookup{err: errors.New("source is down")})

	log, err := p.Process(context.Background(), warLog, domain.LogMetadata{})
	require.NoError(t, err, "no single bad nickname may fail the whole log")

	assert.True(t, log.Degraded)
	alice := log.PlayerStatsByGuild["Allyance"]["Alice"]
	require.NotNil(t, alice)
	assert.Equal(t, domain.SourcePlaceholder, alice.IdentitySource)
	assert.Equal(t, FallbackIdentity("Alice").Class, alice.Class)
	assert.Equal(t, FallbackIdentity("Alice").Family, alice.Family)

	// Counters are untouched by identity failures.
	assert.Equal(t, 2, log.KillsByGuild["Allyance"])
}

func TestPipelineZeroMemberGuild(t *testing.T) {
	p := newTestPipeline(&staticLookup{})

	// The tick line names a guild that never fights; it still appears with
	// zero-valued stats.
	log, err := p.Process(context.Background(),
		"[20:00:01] Alice has killed Bob from Chernobyl \n"+
			"Siege update from Duvencrune \n", domain.LogMetadata{})
	require.NoError(t, err)

	require.Contains(t, log.Guilds, "Duvencrune")
	assert.Empty(t, log.PlayerStatsByGuild["Duvencrune"])
	assert.Zero(t, log.KillsByGuild["Duvencrune"])
	assert.Equal(t, domain.Ratio(0), log.KDRatioByGuild["Duvencrune"])
}

func TestPipelineDeterministic(t *testing.T) {
	p := newTestPipeline(&staticLookup{})

	a, err := p.Process(context.Background(), warLog, domain.LogMetadata{Territory: "Calpheon"})
	require.NoError(t, err)
	b, err := p.Process(context.Background(), warLog, domain.LogMetadata{Territory: "Calpheon"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFallbackIdentityDeterministic(t *testing.T) {
	a := FallbackIdentity("SomeNick")
	b := FallbackIdentity("SomeNick")
	assert.Equal(t, a, b)
	assert.Equal(t, domain.SourcePlaceholder, a.Source)
	assert.NotEmpty(t, a.Class)
	assert.Regexp(t, `^Family\d+$`, a.Family)
}
