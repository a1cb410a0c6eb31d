package main

import (
	"fmt"

	"go.uber.org/zap"

	"smartchimera/internal/cache"
	"smartchimera/internal/config"
	"smartchimera/internal/guardian"
	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
	"smartchimera/internal/mission"
	"smartchimera/internal/policy"
	"smartchimera/internal/scoring"
	"smartchimera/internal/store"
	"smartchimera/internal/types"
)

// app holds the engines shared by every command.
type app struct {
	graph     types.EvidenceGraph
	recorder  types.SkillLevelRecorder
	local     *store.LocalStore
	cache     cache.Backend
	scorer    *scoring.Scorer
	profiles  *mission.Registry
	detector  *linchpin.Detector
	formation *guardian.Engine
	policy    *policy.Engine
}

// openApp wires the evidence graph, cache and engines described by c.
func openApp(c *config.Config, log *zap.Logger) (*app, error) {
	a := &app{scorer: scoring.NewScorer(c.Scoring)}

	if c.Store.Dataset != "" {
		ds, err := store.LoadDataset(c.Store.Dataset)
		if err != nil {
			return nil, err
		}
		mem := store.NewMemoryGraph(ds)
		a.graph, a.recorder = mem, mem
		log.Debug("evidence graph from dataset", zap.String("path", c.Store.Dataset), zap.Int("persons", len(ds.Persons)))
		logging.BootWarn("dataset mode (%s): recomputed skill levels stay in memory", c.Store.Dataset)
	} else {
		local, err := store.NewLocalStore(c.Store.Driver, c.Store.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open evidence store: %w", err)
		}
		a.local = local
		a.graph, a.recorder = local, local
		log.Debug("evidence graph from sqlite", zap.String("path", c.Store.DatabasePath), zap.String("driver", local.Driver()))
	}

	var err error
	if c.Missions.ProfilesPath != "" {
		a.profiles, err = mission.LoadFile(c.Missions.ProfilesPath)
	} else {
		a.profiles, err = mission.Embedded()
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	doc, err := policy.LoadDocument(c.Policy.RulesPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.policy, err = policy.NewEngine(doc); err != nil {
		a.Close()
		return nil, err
	}
	a.policy.SetProfileResolver(func(id string) (string, bool) {
		p, ok := a.profiles.Lookup(id)
		return p.ID, ok
	})

	a.cache, err = cache.Open(cache.Options{
		RedisURL:   c.Redis.URL,
		Prefix:     c.Redis.Prefix,
		TTL:        c.GetRedisTTL(),
		MaxEntries: c.Redis.MaxEntries,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Debug("centrality cache", zap.String("backend", a.cache.Name()))

	a.detector = linchpin.NewDetector(a.graph, a.scorer, c.Linchpin)
	a.detector.SetCache(a.cache)

	a.formation = guardian.NewEngine(a.graph, a.profiles, c.Formation)
	a.formation.SetScorer(a.scorer)
	a.formation.SetLinchpinSource(a.detector)
	logging.Boot("engines ready: %d mission profiles, cache=%s", len(a.profiles.List()), a.cache.Name())
	return a, nil
}

// builder returns a dossier builder limited to n evidence items per contributor.
func (a *app) builder(n int) *policy.Builder {
	b := policy.NewBuilder(a.graph, a.scorer)
	b.SetEvidenceLimit(n)
	return b
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.local != nil {
		_ = a.local.Close()
	}
}
