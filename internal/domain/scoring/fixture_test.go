package scoring_test

import (
	"context"

	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/domain/model"
)

// competition seeds a store with one blue team and lets tests append rounds
// with a pass/fail outcome per service.
type competition struct {
	store    *repository.MemoryStore
	team     model.Team
	services []model.Service
	rounds   int
}

func newCompetition(points ...int) *competition {
	ctx := context.Background()
	c := &competition{store: repository.NewMemoryStore()}
	c.team, _ = c.store.AddTeam(ctx, model.Team{Name: "Blue Team", Color: model.ColorBlue})
	for i, p := range points {
		svc, _ := c.store.AddService(ctx, model.Service{
			TeamID: c.team.ID,
			Name:   []string{"web", "dns", "ssh", "smtp"}[i],
			Points: p,
		})
		c.services = append(c.services, svc)
	}
	return c
}

// round appends one round. results[i] is the outcome for service i; a nil
// entry leaves the service without a check.
func (c *competition) round(results ...*bool) {
	ctx := context.Background()
	c.rounds++
	r, _ := c.store.AddRound(ctx, model.Round{Number: c.rounds})
	for i, res := range results {
		if res == nil {
			continue
		}
		_, _ = c.store.RecordCheck(ctx, model.Check{ServiceID: c.services[i].ID, RoundID: r.ID, Result: *res, Completed: true})
	}
}

func (c *competition) repeat(n int, results ...*bool) {
	for i := 0; i < n; i++ {
		c.round(results...)
	}
}

func pass() *bool { v := true; return &v }
func fail() *bool { v := false; return &v }
