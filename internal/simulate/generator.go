// Package simulate plays a deterministic red/blue competition into a store.
//
// It stands in for the check-execution side of a real deployment: it creates
// teams, services and rounds, then records one pass/fail check per service per
// round. Outages span several rounds so SLA penalties actually trigger.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/pkg/logger"
)

type serviceKind struct {
	name  string
	check string
}

var catalog = []serviceKind{ //nolint:gochecknoglobals // fixed service catalog
	{"web", "HTTPCheck"},
	{"dns", "DNSCheck"},
	{"ssh", "SSHCheck"},
	{"smtp", "SMTPCheck"},
	{"ftp", "FTPCheck"},
	{"ldap", "LDAPCheck"},
	{"sql", "MySQLCheck"},
	{"rdp", "RDPCheck"},
}

// Generator writes a competition into a store.
type Generator struct {
	store repository.Store
	cfg   Config
	rng   *rand.Rand
	clock time.Time
	log   logger.Logger
}

// NewGenerator creates a generator for cfg.
func NewGenerator(store repository.Store, cfg Config, log logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		store: store,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), //nolint:gosec // reproducible, not secret
		clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		log:   log.Named("simulate"),
	}
}

// Generate validates cfg and plays a full competition into store.
func Generate(ctx context.Context, store repository.Store, cfg Config, log logger.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	return NewGenerator(store, cfg, log).Run(ctx)
}

// Run creates the teams and plays every configured round.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	var res Result
	services, err := g.setup(ctx, &res)
	if err != nil {
		return res, err
	}

	outage := make(map[int64]int, len(services))
	for i := 0; i < g.cfg.Rounds; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := g.playRound(ctx, services, outage, &res); err != nil {
			return res, err
		}
	}

	g.log.Info(ctx, "competition generated",
		logger.Int("blue_teams", len(res.BlueTeams)),
		logger.Int("services", res.Services),
		logger.Int("rounds", res.Rounds),
		logger.Int("checks", res.Checks),
		logger.Int("passed", res.Passed))
	return res, nil
}

func (g *Generator) setup(ctx context.Context, res *Result) ([]model.Service, error) {
	var services []model.Service
	for i := 1; i <= g.cfg.BlueTeams; i++ {
		team, err := g.store.AddTeam(ctx, model.Team{Name: "Blue Team " + strconv.Itoa(i), Color: model.ColorBlue})
		if err != nil {
			return nil, fmt.Errorf("add blue team %d: %w", i, err)
		}
		res.BlueTeams = append(res.BlueTeams, team.ID)

		for _, kind := range catalog[:g.cfg.ServicesPerTeam] {
			svc, err := g.store.AddService(ctx, model.Service{
				TeamID:    team.ID,
				Name:      kind.name,
				CheckName: kind.check,
				Points:    g.cfg.Points,
			})
			if err != nil {
				return nil, fmt.Errorf("add service %s for team %d: %w", kind.name, team.ID, err)
			}
			services = append(services, svc)
		}
	}
	for i := 1; i <= g.cfg.RedTeams; i++ {
		team, err := g.store.AddTeam(ctx, model.Team{Name: "Red Team " + strconv.Itoa(i), Color: model.ColorRed})
		if err != nil {
			return nil, fmt.Errorf("add red team %d: %w", i, err)
		}
		res.RedTeams = append(res.RedTeams, team.ID)
	}
	res.Services = len(services)
	return services, nil
}

func (g *Generator) playRound(ctx context.Context, services []model.Service, outage map[int64]int, res *Result) error {
	last, err := g.store.LastRoundNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest round: %w", err)
	}
	round, err := g.store.AddRound(ctx, model.Round{
		Number: last + 1,
		Start:  g.clock,
		End:    g.clock.Add(g.cfg.RoundLength),
	})
	if err != nil {
		return fmt.Errorf("add round %d: %w", last+1, err)
	}
	g.clock = round.End
	res.Rounds++

	for _, svc := range services {
		result := g.outcome(svc.ID, outage)
		completed := g.rng.Float64() >= g.cfg.IncompleteRate
		if _, err := g.store.RecordCheck(ctx, model.Check{
			ServiceID: svc.ID,
			RoundID:   round.ID,
			Result:    result,
			Completed: completed,
		}); err != nil {
			return fmt.Errorf("record check for service %d round %d: %w", svc.ID, round.Number, err)
		}
		res.Checks++
		if result && completed {
			res.Passed++
		}
	}
	return nil
}

// outcome decides one check, advancing the service's outage counter.
func (g *Generator) outcome(serviceID int64, outage map[int64]int) bool {
	if left := outage[serviceID]; left > 0 {
		outage[serviceID] = left - 1
		return false
	}
	if g.cfg.OutageRate > 0 && g.rng.Float64() < g.cfg.OutageRate {
		outage[serviceID] = g.rng.IntN(g.cfg.MaxOutage)
		return false
	}
	return g.rng.Float64() >= g.cfg.FailureRate
}
