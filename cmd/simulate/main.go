// Command simulate plays a synthetic red/blue competition into a database,
// replays every blue team's scores and prints the resulting SLA overview.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/adapters/settings"
	app "github.com/okian/rampart/internal/app"
	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/internal/domain/types"
	"github.com/okian/rampart/internal/simulate"
	"github.com/okian/rampart/pkg/logger"
)

type options struct {
	driver   string
	dsn      string
	game     simulate.Config
	settings map[string]string
	verbose  bool
}

func main() {
	def := simulate.DefaultConfig()
	var (
		opts        = options{game: def, settings: map[string]string{}}
		seed        = flag.Uint64("seed", def.Seed, "PRNG seed; equal seeds replay the same competition")
		slaEnabled  = flag.Bool("sla", true, "enable SLA penalties")
		mode        = flag.String("mode", "additive", "penalty mode: additive, flat, exponential, next_check_reduction")
		threshold   = flag.Int("threshold", 5, "consecutive failures before a penalty applies")
		dynamic     = flag.Bool("dynamic", false, "enable round-phase multipliers")
		lateStart   = flag.Int("late-start", 50, "first round of the late phase")
		earlyRounds = flag.Int("early-rounds", 10, "length of the early phase")
	)
	flag.StringVar(&opts.driver, "driver", "sqlite", "database driver: sqlite or postgres")
	flag.StringVar(&opts.dsn, "dsn", ":memory:", "database DSN")
	flag.IntVar(&opts.game.BlueTeams, "blue", def.BlueTeams, "number of blue teams")
	flag.IntVar(&opts.game.RedTeams, "red", def.RedTeams, "number of red teams")
	flag.IntVar(&opts.game.ServicesPerTeam, "services", def.ServicesPerTeam, "services per blue team")
	flag.IntVar(&opts.game.Rounds, "rounds", def.Rounds, "rounds to play")
	flag.IntVar(&opts.game.Points, "points", def.Points, "points per successful check")
	flag.Float64Var(&opts.game.FailureRate, "failure-rate", def.FailureRate, "chance of a single failed check")
	flag.Float64Var(&opts.game.OutageRate, "outage-rate", def.OutageRate, "chance a service starts an outage")
	flag.IntVar(&opts.game.MaxOutage, "max-outage", def.MaxOutage, "longest outage in rounds")
	flag.Float64Var(&opts.game.IncompleteRate, "incomplete-rate", def.IncompleteRate, "chance a check is left incomplete")
	flag.BoolVar(&opts.verbose, "verbose", false, "log progress to stderr")
	flag.Parse()

	opts.game.Seed = *seed
	opts.settings[sla.KeySLAEnabled] = fmt.Sprint(*slaEnabled)
	opts.settings[sla.KeyPenaltyMode] = *mode
	opts.settings[sla.KeyPenaltyThreshold] = fmt.Sprint(*threshold)
	opts.settings[sla.KeyDynamicEnabled] = fmt.Sprint(*dynamic)
	opts.settings[sla.KeyLateStartRound] = fmt.Sprint(*lateStart)
	opts.settings[sla.KeyEarlyRounds] = fmt.Sprint(*earlyRounds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// run seeds the database, replays every blue team and writes the overview as JSON.
func run(ctx context.Context, opts options, out io.Writer) error {
	log := logger.Nop()
	if opts.verbose {
		log = logger.New(os.Stderr, "text")
	}

	db, dialect, err := repository.Open(ctx, opts.driver, opts.dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := repository.NewSQLStore(ctx, db, repository.WithDialect(dialect), repository.WithLogger(log))
	if err != nil {
		return err
	}
	source, err := settings.NewSQLSource(ctx, db, dialect)
	if err != nil {
		return err
	}
	provider := settings.NewProvider(source, settings.WithLogger(log))
	for name, value := range opts.settings {
		if err := provider.Set(ctx, name, value); err != nil {
			return fmt.Errorf("setting %s: %w", name, err)
		}
	}

	res, err := simulate.Generate(ctx, store, opts.game, log)
	if err != nil {
		return err
	}

	svc := app.New(store, provider, app.WithLogger(log))
	for _, id := range res.BlueTeams {
		if res.Rounds == 0 {
			break
		}
		if _, err := svc.RecomputeNow(ctx, id, 1, res.Rounds); err != nil {
			return fmt.Errorf("recompute team %d: %w", id, err)
		}
	}

	overview, err := svc.Summaries(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Result   simulate.Result   `json:"result"`
		PassRate float64           `json:"pass_rate"`
		Overview types.SLAOverview `json:"overview"`
		Settings map[string]string `json:"settings"`
	}{res, sla.Percent(res.Passed, res.Checks), overview, opts.settings})
}
