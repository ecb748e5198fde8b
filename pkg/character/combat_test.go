package character

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

func TestCombatState_Active(t *testing.T) {
	tests := []struct {
		name     string
		state    *CombatState
		expected bool
	}{
		{name: "nil state", state: nil, expected: false},
		{name: "empty roster", state: &CombatState{Enemies: []Enemy{}}, expected: false},
		{
			name: "one healthy enemy",
			state: &CombatState{Enemies: []Enemy{
				{EnemyID: "e1", Name: "Goblin", Status: StatusHealthy},
			}},
			expected: true,
		},
		{
			name: "all dead",
			state: &CombatState{Enemies: []Enemy{
				{EnemyID: "e1", Name: "Goblin", Status: StatusDead},
				{EnemyID: "e2", Name: "Orc", Status: StatusDead},
			}},
			expected: false,
		},
		{
			name: "one wounded among dead",
			state: &CombatState{Enemies: []Enemy{
				{EnemyID: "e1", Name: "Goblin", Status: StatusDead},
				{EnemyID: "e2", Name: "Orc", Status: StatusWounded},
				{EnemyID: "e3", Name: "Troll", Status: StatusDead},
			}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Active(); got != tt.expected {
				t.Errorf("expected active=%v, got %v", tt.expected, got)
			}
		})
	}
}

// Active must agree with "any enemy not Dead" for every roster, not just the
// handpicked cases above. Rosters are generated with a fixed seed so a
// failure reproduces.
func TestCombatState_ActiveDerivation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []Status{StatusHealthy, StatusWounded, StatusDead}

	for i := 0; i < 1000; i++ {
		n := rng.Intn(MaxEnemies + 1)
		enemies := make([]Enemy, 0, n)
		anyAlive := false
		for j := 0; j < n; j++ {
			status := statuses[rng.Intn(len(statuses))]
			if status != StatusDead {
				anyAlive = true
			}
			enemies = append(enemies, Enemy{
				EnemyID: fmt.Sprintf("e%d", j),
				Name:    "Enemy",
				Status:  status,
			})
		}

		cs := &CombatState{CombatID: "c1", StartedAt: Now(), Turn: 1, Enemies: enemies}
		if got := cs.Active(); got != anyAlive {
			t.Fatalf("roster %+v: Active()=%v, want %v", enemies, got, anyAlive)
		}
	}
}

func TestCombatState_Normalize(t *testing.T) {
	cs := &CombatState{CombatID: "c1", StartedAt: Now()}
	cs.Normalize()
	if cs.Turn != 1 {
		t.Errorf("expected zero turn defaulted to 1, got %d", cs.Turn)
	}

	cs.Turn = 4
	cs.Normalize()
	if cs.Turn != 4 {
		t.Errorf("turn counter was overwritten: %d", cs.Turn)
	}
}

func TestCombatState_Validate(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enemy := func(id string) Enemy {
		return Enemy{EnemyID: id, Name: "Goblin", Status: StatusHealthy}
	}

	tests := []struct {
		name      string
		state     CombatState
		wantField string
	}{
		{
			name:  "valid",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{enemy("e1")}},
		},
		{
			name:  "valid no enemies",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 2},
		},
		{
			name:      "empty combat id",
			state:     CombatState{CombatID: " ", StartedAt: started, Turn: 1},
			wantField: "combat_state.combat_id",
		},
		{
			name:      "zero started_at",
			state:     CombatState{CombatID: "c1", Turn: 1},
			wantField: "combat_state.started_at",
		},
		{
			name:      "turn below one",
			state:     CombatState{CombatID: "c1", StartedAt: started, Turn: 0},
			wantField: "combat_state.turn",
		},
		{
			name: "roster over the bound",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{
				enemy("e1"), enemy("e2"), enemy("e3"), enemy("e4"), enemy("e5"), enemy("e6"),
			}},
			wantField: "combat_state.enemies",
		},
		{
			name: "roster at the bound",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{
				enemy("e1"), enemy("e2"), enemy("e3"), enemy("e4"), enemy("e5"),
			}},
		},
		{
			name: "enemy missing id",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{
				{Name: "Goblin", Status: StatusHealthy},
			}},
			wantField: "combat_state.enemies[0].enemy_id",
		},
		{
			name: "enemy missing name",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{
				{EnemyID: "e1", Status: StatusHealthy},
			}},
			wantField: "combat_state.enemies[0].name",
		},
		{
			name: "enemy unknown status",
			state: CombatState{CombatID: "c1", StartedAt: started, Turn: 1, Enemies: []Enemy{
				enemy("e1"),
				{EnemyID: "e2", Name: "Orc", Status: "Sleeping"},
			}},
			wantField: "combat_state.enemies[1].status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := apperr.FieldOf(err); got != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, got)
			}
		})
	}
}
