package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/rampart/internal/domain/model"
)

type serviceRound struct {
	serviceID int64
	roundID   int64
}

type teamRound struct {
	teamID int64
	round  int
}

// MemoryStore is an in-process Store guarded by a single RWMutex.
type MemoryStore struct {
	mu sync.RWMutex

	nextID   int64
	teams    map[int64]model.Team
	services map[int64]model.Service
	rounds   map[int64]model.Round
	numbers  map[int]int64 // round number -> round id
	checks   map[serviceRound]model.Check
	byTeam   map[int64][]int64 // team -> service ids in insertion order
	scores   map[teamRound]int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:    make(map[int64]model.Team),
		services: make(map[int64]model.Service),
		rounds:   make(map[int64]model.Round),
		numbers:  make(map[int]int64),
		checks:   make(map[serviceRound]model.Check),
		byTeam:   make(map[int64][]int64),
		scores:   make(map[teamRound]int),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// AddTeam stores a team and assigns its id.
func (m *MemoryStore) AddTeam(_ context.Context, team model.Team) (model.Team, error) {
	if team.Name == "" {
		return model.Team{}, fmt.Errorf("%w: team name is empty", ErrInvalidRecord)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	team.ID = m.id()
	m.teams[team.ID] = team
	return team, nil
}

// AddService stores a service for an existing team.
func (m *MemoryStore) AddService(_ context.Context, svc model.Service) (model.Service, error) {
	if svc.Name == "" || svc.Points < 0 {
		return model.Service{}, fmt.Errorf("%w: service needs a name and non-negative points", ErrInvalidRecord)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[svc.TeamID]; !ok {
		return model.Service{}, fmt.Errorf("team %d: %w", svc.TeamID, ErrNotFound)
	}
	for _, id := range m.byTeam[svc.TeamID] {
		if m.services[id].Name == svc.Name {
			return model.Service{}, fmt.Errorf("%w: team %d already has service %q", ErrInvalidRecord, svc.TeamID, svc.Name)
		}
	}
	svc.ID = m.id()
	m.services[svc.ID] = svc
	m.byTeam[svc.TeamID] = append(m.byTeam[svc.TeamID], svc.ID)
	return svc, nil
}

// AddRound stores a round. Round numbers are unique and start at 1.
func (m *MemoryStore) AddRound(_ context.Context, round model.Round) (model.Round, error) {
	if round.Number < 1 {
		return model.Round{}, fmt.Errorf("%w: round number %d", ErrInvalidRecord, round.Number)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.numbers[round.Number]; ok {
		return model.Round{}, fmt.Errorf("%w: round %d exists", ErrInvalidRecord, round.Number)
	}
	round.ID = m.id()
	m.rounds[round.ID] = round
	m.numbers[round.Number] = round.ID
	return round, nil
}

// RecordCheck stores a check, filling in its round number.
func (m *MemoryStore) RecordCheck(_ context.Context, check model.Check) (model.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[check.ServiceID]; !ok {
		return model.Check{}, fmt.Errorf("service %d: %w", check.ServiceID, ErrNotFound)
	}
	round, ok := m.rounds[check.RoundID]
	if !ok {
		return model.Check{}, fmt.Errorf("round %d: %w", check.RoundID, ErrNotFound)
	}
	key := serviceRound{serviceID: check.ServiceID, roundID: check.RoundID}
	if _, dup := m.checks[key]; dup {
		return model.Check{}, fmt.Errorf("service %d round %d: %w", check.ServiceID, round.Number, ErrDuplicateCheck)
	}
	check.ID = m.id()
	check.RoundNumber = round.Number
	m.checks[key] = check
	return check, nil
}

// Team returns one team.
func (m *MemoryStore) Team(_ context.Context, id int64) (model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return model.Team{}, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// Teams returns every team ordered by id.
func (m *MemoryStore) Teams(_ context.Context) ([]model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedTeams(func(model.Team) bool { return true }), nil
}

// BlueTeams returns the defending teams ordered by id.
func (m *MemoryStore) BlueTeams(_ context.Context) ([]model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedTeams(func(t model.Team) bool { return t.Color.IsDefender() }), nil
}

func (m *MemoryStore) sortedTeams(keep func(model.Team) bool) []model.Team {
	out := make([]model.Team, 0, len(m.teams))
	for _, t := range m.teams {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TeamServices returns the team's services in insertion order.
func (m *MemoryStore) TeamServices(_ context.Context, teamID int64) ([]model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byTeam[teamID]
	out := make([]model.Service, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.services[id])
	}
	return out, nil
}

// LastRoundNumber returns the highest round number, or 0.
func (m *MemoryStore) LastRoundNumber(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for n := range m.numbers {
		last = max(last, n)
	}
	return last, nil
}

// CompletedHistory returns the service's completed checks in round order.
func (m *MemoryStore) CompletedHistory(_ context.Context, serviceID int64) ([]model.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CheckResult
	for key, c := range m.checks {
		if key.serviceID == serviceID && c.Completed {
			out = append(out, model.CheckResult{Round: c.RoundNumber, Result: c.Result})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// ChecksInRange returns the checks of the team's services for rounds first..last.
func (m *MemoryStore) ChecksInRange(_ context.Context, teamID int64, first, last int) ([]model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Check
	for _, c := range m.checks {
		if c.RoundNumber < first || c.RoundNumber > last {
			continue
		}
		if m.services[c.ServiceID].TeamID == teamID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].ServiceID < out[j].ServiceID
	})
	return out, nil
}

// ScoreAt returns the cached total for a team at a round.
func (m *MemoryStore) ScoreAt(_ context.Context, teamID int64, round int) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scores[teamRound{teamID: teamID, round: round}]
	return v, ok, nil
}

// SaveScores upserts the given totals.
func (m *MemoryStore) SaveScores(_ context.Context, teamID int64, totals []model.RoundTotal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range totals {
		m.scores[teamRound{teamID: teamID, round: t.Round}] = t.Score
	}
	return nil
}

// TeamScores returns every cached total of a team in round order.
func (m *MemoryStore) TeamScores(_ context.Context, teamID int64) ([]model.RoundTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RoundTotal
	for k, v := range m.scores {
		if k.teamID == teamID {
			out = append(out, model.RoundTotal{Round: k.round, Score: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// Counts reports the number of stored records.
func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Counts{
		Teams:    len(m.teams),
		Services: len(m.services),
		Rounds:   len(m.rounds),
		Checks:   len(m.checks),
	}, nil
}
