package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/pkg/character"
)

// validate checks exported character documents before they are imported
// into a live store. It applies the same normalization and validation the
// API applies on write, plus the sub-resource checks that normally run on
// their own endpoints.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <character.json> [more.json...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		v := &SaveValidator{}
		if err := v.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filename, err)
			failed = true
			continue
		}
		fmt.Printf("%s: valid\n", filename)
	}
	if failed {
		os.Exit(1)
	}
}

type SaveValidator struct {
	errors []string
}

func (v *SaveValidator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *SaveValidator) validateFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}

	var c character.Character
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&c); err != nil {
		return fmt.Errorf("failed strict JSON unmarshaling: %w", err)
	}

	v.errors = nil
	v.validateCharacter(&c)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n  %s", strings.Join(v.errors, "\n  "))
	}
	return nil
}

func (v *SaveValidator) validateCharacter(c *character.Character) {
	if _, err := uuid.Parse(c.ID); err != nil {
		v.errorf("id: must be a UUID (got %q)", c.ID)
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		v.errorf("owner_id: must not be empty")
	}

	c.NormalizeLoaded()
	if err := c.Validate(); err != nil {
		v.errorf("%v", err)
	}

	if c.ActiveQuest != nil {
		if err := c.ActiveQuest.Validate(); err != nil {
			v.errorf("active_quest: %v", err)
		}
	}
	for i, aq := range c.ArchivedQuests {
		if err := aq.Quest.Validate(); err != nil {
			v.errorf("archived_quests[%d]: %v", i, err)
		}
		if aq.ClearedAt.IsZero() {
			v.errorf("archived_quests[%d]: cleared_at must be set", i)
		}
	}
	if len(c.ArchivedQuests) > character.MaxArchivedQuests {
		v.errorf("archived_quests: at most %d entries are kept (got %d)",
			character.MaxArchivedQuests, len(c.ArchivedQuests))
	}

	if c.CombatState != nil {
		if err := c.CombatState.Validate(); err != nil {
			v.errorf("%v", err)
		}
	}

	seen := make(map[string]bool)
	for i, p := range c.WorldPOIs {
		if err := p.Validate(); err != nil {
			v.errorf("world_pois[%d]: %v", i, err)
		}
		if p.ID != "" && seen[p.ID] {
			v.errorf("world_pois[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
}
