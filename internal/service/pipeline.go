package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/domain"
	"nodewar-tracker/internal/parser"
	"nodewar-tracker/internal/resolver"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pipeline turns one raw war log into an immutable ProcessedLog. It is
// deterministic given identical log text and identical resolver answers, and
// has no fatal failure modes: a bad nickname degrades the result, never
// discards it.
type Pipeline struct {
	detector  *parser.Detector
	extractor *parser.Extractor
	resolver  *resolver.Resolver
	cfg       *config.Config
	logger    zerolog.Logger
}

func NewPipeline(res *resolver.Resolver, cfg *config.Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		detector:  parser.NewDetector(cfg.HomeGuild),
		extractor: parser.NewExtractor(cfg.RivalGuild),
		resolver:  res,
		cfg:       cfg,
		logger:    logger,
	}
}

func (p *Pipeline) Process(ctx context.Context, logText string, meta domain.LogMetadata) (*domain.ProcessedLog, error) {
	membership := p.detector.BuildMembership(logText)
	nicks := membership.AllNicks()

	p.logger.Info().
		Strs("guilds", membership.Guilds()).
		Int("players", len(nicks)).
		Str("territory", meta.Territory).
		Msg("processing war log")

	// Event counting does not need class/family answers; run it alongside
	// the batched resolution and join before assembly.
	var (
		identities map[string]domain.Identity
		failures   map[string]error
		extraction *parser.Extraction
		totalSecs  int
		occupancy  map[string]int
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		identities, failures = p.resolver.ResolveBatch(ctx, nicks)
		return nil
	})
	g.Go(func() error {
		extraction = p.extractor.Extract(logText, membership)
		totalSecs, occupancy = parser.ComputeOccupancy(logText, membership)
		return nil
	})
	_ = g.Wait()

	for nick, err := range failures {
		p.logger.Warn().Err(err).Str("nick", nick).Msg("identity unresolved, using placeholder")
		identities[nick] = FallbackIdentity(nick)
	}

	log := p.assemble(membership, extraction, identities, totalSecs, occupancy, meta)
	log.Degraded = len(failures) > 0

	p.logger.Info().
		Int("total_players", log.TotalGeral).
		Int("total_node_seconds", log.TotalNodeSeconds).
		Bool("degraded", log.Degraded).
		Msg("war log processed")

	return log, nil
}

func (p *Pipeline) assemble(
	m *parser.Membership,
	ex *parser.Extraction,
	identities map[string]domain.Identity,
	totalSecs int,
	occupancy map[string]int,
	meta domain.LogMetadata,
) *domain.ProcessedLog {
	guilds := m.Guilds()

	log := &domain.ProcessedLog{
		Territory:          meta.Territory,
		NodeName:           meta.NodeName,
		IsWin:              meta.IsWin,
		WinReason:          meta.WinReason,
		Guilds:             guilds,
		Classes:            make(map[string][]domain.RosterEntry),
		ClassesByGuild:     make(map[string]map[string][]domain.RosterEntry),
		KillsByGuild:       make(map[string]int),
		DeathsByGuild:      make(map[string]int),
		KDRatioByGuild:     make(map[string]domain.Ratio),
		KillsMatrix:        ex.KillsMatrix,
		PlayerStatsByGuild: make(map[string]map[string]*domain.PlayerCombatStat),
		TotalNodeSeconds:   totalSecs,
		OccupancyByGuild:   occupancy,
	}

	classCounts := make(map[string]int)
	for _, guild := range guilds {
		stats := ex.Stats[guild]
		if stats == nil {
			stats = make(map[string]*domain.PlayerCombatStat)
		}
		// A member never seen on a combat line still gets a zero-valued row.
		for nick := range m.Members(guild) {
			if _, ok := stats[nick]; !ok {
				stats[nick] = &domain.PlayerCombatStat{Nick: nick, Guild: guild}
			}
		}
		log.PlayerStatsByGuild[guild] = stats
		log.ClassesByGuild[guild] = make(map[string][]domain.RosterEntry)

		var nicks []string
		for nick := range stats {
			nicks = append(nicks, nick)
		}
		sort.Strings(nicks)

		for _, nick := range nicks {
			stat := stats[nick]
			id, ok := identities[nick]
			if !ok {
				id = FallbackIdentity(nick)
			}
			stat.Class = id.Class
			stat.Family = id.Family
			stat.IdentitySource = id.Source

			entry := domain.RosterEntry{Nick: nick, Familia: id.Family}
			log.ClassesByGuild[guild][id.Class] = append(log.ClassesByGuild[guild][id.Class], entry)
			if guild == p.cfg.HomeGuild {
				log.Classes[id.Class] = append(log.Classes[id.Class], entry)
				classCounts[id.Class]++
				log.TotalGeral++
			}
		}

		log.KillsByGuild[guild] = ex.KillsByGuild[guild]
		log.DeathsByGuild[guild] = ex.DeathsByGuild[guild]
		log.KDRatioByGuild[guild] = domain.KD(ex.KillsByGuild[guild], ex.DeathsByGuild[guild])
	}

	for class, count := range classCounts {
		log.TotalPorClasse = append(log.TotalPorClasse, domain.ClassCount{Classe: class, Count: count})
	}
	sort.Slice(log.TotalPorClasse, func(i, j int) bool {
		a, b := log.TotalPorClasse[i], log.TotalPorClasse[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Classe < b.Classe
	})

	return log
}

var fallbackClasses = []string{
	"Warrior", "Ranger", "Sorceress", "Berserker", "Tamer", "Musa", "Maehwa",
	"Valkyrie", "Wizard", "Witch", "Kunoichi", "Ninja", "Dark Knight",
	"Striker", "Mystic", "Lahn", "Archer", "Shai", "Guardian", "Hashashin",
	"Nova", "Sage", "Corsair", "Drakania",
}

// FallbackIdentity derives a deterministic placeholder identity from a
// nickname hash, used only when the resolver exhausts its retries. The
// placeholder tag keeps it distinguishable from a genuine answer so the
// monthly merge can re-resolve it later.
func FallbackIdentity(nick string) domain.Identity {
	h := fnv.New32a()
	h.Write([]byte(nick))
	sum := h.Sum32()
	return domain.Identity{
		Class:  fallbackClasses[sum%uint32(len(fallbackClasses))],
		Family: fmt.Sprintf("Family%d", sum%10000),
		Source: domain.SourcePlaceholder,
	}
}
