package parser

import (
	"testing"

	"nodewar-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	kill := ClassifyLine("[12:00:01] Alice has killed Bob from Rival ")
	assert.Equal(t, LineKill, kill.Kind)
	assert.Equal(t, "Alice", kill.Actor)
	assert.Equal(t, "Bob", kill.Opponent)
	assert.Equal(t, "Rival", kill.GuildToken)
	require.NotNil(t, kill.Time)
	assert.Equal(t, 12*3600+1, *kill.Time)

	death := ClassifyLine("[12:30:00] Carol died to Dave from Chernobyl ")
	assert.Equal(t, LineDeath, death.Kind)
	assert.Equal(t, "Carol", death.Actor)
	assert.Equal(t, "Dave", death.Opponent)
	assert.Equal(t, "Chernobyl", death.GuildToken)

	other := ClassifyLine("Node war has started.")
	assert.Equal(t, LineOther, other.Kind)
	assert.Nil(t, other.Time)
}

func TestParseTick(t *testing.T) {
	for line, want := range map[string]int{
		"Next war tick: 42":        42,
		"[12:00:00] Node Time: 17": 17,
		"PID: 9001":                9001,
	} {
		tick := ParseTick(line)
		require.NotNil(t, tick, line)
		assert.Equal(t, want, *tick)
	}
	assert.Nil(t, ParseTick("[12:00:00] Alice has killed Bob from Rival "))
}

func TestExtractKillLine(t *testing.T) {
	d := NewDetector("Allyance")
	log := "[12:00:01] Alice has killed Bob from Rival \n"
	m := d.BuildMembership(log)
	ex := NewExtractor("Rival").Extract(log, m)

	// Property from the home-guild extraction contract.
	assert.Equal(t, 1, ex.KillsByGuild["Allyance"])
	assert.Equal(t, 1, ex.DeathsByGuild["Rival"])
	assert.Equal(t, 1, ex.KillsMatrix["Allyance"]["Rival"])

	alice := ex.Stats["Allyance"]["Alice"]
	require.NotNil(t, alice)
	assert.Equal(t, 1, alice.Kills)
	assert.Equal(t, 1, alice.KillsVsRival)
	assert.Equal(t, 0, alice.KillsVsOthers)

	bob := ex.Stats["Rival"]["Bob"]
	require.NotNil(t, bob)
	assert.Equal(t, 1, bob.Deaths)
	assert.Equal(t, 1, bob.DeathsVsOthers, "Bob died to a non-rival guild")
}

func TestExtractDeathLinePrefersNamedGuildToken(t *testing.T) {
	d := NewDetector("Allyance")
	// Rex is independently known as a Valencia member via the kill line, but
	// the death line names Chernobyl as his guild. The written log wins.
	log := "[12:00:01] Alice has killed Rex from Valencia \n" +
		"[12:00:05] Alice died to Rex from Chernobyl \n"
	m := d.BuildMembership(log)
	ex := NewExtractor("Chernobyl").Extract(log, m)

	assert.Equal(t, 1, ex.KillsByGuild["Chernobyl"])
	assert.Equal(t, 1, ex.KillsMatrix["Chernobyl"]["Allyance"])
	assert.Zero(t, ex.KillsByGuild["Valencia"])

	alice := ex.Stats["Allyance"]["Alice"]
	require.NotNil(t, alice)
	assert.Equal(t, 1, alice.Deaths)
	assert.Equal(t, 1, alice.DeathsVsRival)
}

func TestExtractUnresolvableNickSkipped(t *testing.T) {
	d := NewDetector("Allyance")
	// Ghost appears only as a killer on a kill line: no membership set will
	// ever contain him, so the line contributes nothing.
	m := d.BuildMembership("")
	ex := NewExtractor("Rival").Extract("[12:00:01] Ghost has killed Bob from Rival \n", m)

	assert.Empty(t, ex.KillsByGuild)
	assert.Empty(t, ex.DeathsByGuild)
	assert.Empty(t, ex.KillsMatrix)
}

func TestExtractLastKnownTickBackfill(t *testing.T) {
	d := NewDetector("Allyance")
	log := "[12:00:01] Alice has killed Bob from Rival \n" +
		"Next war tick: 7\n" +
		"[12:00:09] Alice has killed Rex from Rival \n"
	m := d.BuildMembership(log)
	ex := NewExtractor("Rival").Extract(log, m)

	alice := ex.Stats["Allyance"]["Alice"]
	require.Len(t, alice.Events, 2)
	assert.Nil(t, alice.Events[0].Tick, "no tick observed yet")
	require.NotNil(t, alice.Events[1].Tick)
	assert.Equal(t, 7, *alice.Events[1].Tick)
}

func TestExtractCountersSplitInvariant(t *testing.T) {
	d := NewDetector("Allyance")
	log := "[12:00:01] Alice has killed Bob from Chernobyl \n" +
		"[12:00:02] Alice has killed Kim from Valencia \n" +
		"[12:00:03] Alice died to Rex from Chernobyl \n" +
		"[12:00:04] Alice died to Kim from Valencia \n"
	m := d.BuildMembership(log)
	ex := NewExtractor("Chernobyl").Extract(log, m)

	for guild, stats := range ex.Stats {
		for nick, stat := range stats {
			assert.Equal(t, stat.Kills, stat.KillsVsRival+stat.KillsVsOthers, "%s/%s kills", guild, nick)
			assert.Equal(t, stat.Deaths, stat.DeathsVsRival+stat.DeathsVsOthers, "%s/%s deaths", guild, nick)
		}
	}

	alice := ex.Stats["Allyance"]["Alice"]
	assert.Equal(t, 2, alice.Kills)
	assert.Equal(t, 1, alice.KillsVsRival)
	assert.Equal(t, 1, alice.KillsVsOthers)
	assert.Equal(t, 2, alice.Deaths)
	assert.Equal(t, 1, alice.DeathsVsRival)
	assert.Equal(t, 1, alice.DeathsVsOthers)
}

func TestExtractEventCarriesOpponent(t *testing.T) {
	d := NewDetector("Allyance")
	log := "[12:00:01] Alice has killed Bob from Rival \n"
	m := d.BuildMembership(log)
	ex := NewExtractor("Rival").Extract(log, m)

	alice := ex.Stats["Allyance"]["Alice"]
	require.Len(t, alice.Events, 1)
	assert.Equal(t, domain.EventKill, alice.Events[0].Type)
	assert.Equal(t, "Bob", alice.Events[0].OpponentNick)
	assert.Equal(t, "Rival", alice.Events[0].OpponentGuild)

	bob := ex.Stats["Rival"]["Bob"]
	require.Len(t, bob.Events, 1)
	assert.Equal(t, domain.EventDeath, bob.Events[0].Type)
	assert.Equal(t, "Alice", bob.Events[0].OpponentNick)
	assert.Equal(t, "Allyance", bob.Events[0].OpponentGuild)
}
