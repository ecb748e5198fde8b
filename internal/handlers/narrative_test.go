package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/pkg/character"
)

func appendTurn(t *testing.T, handler http.Handler, characterID, body string) AppendTurnResponse {
	t.Helper()
	rr := doRequest(handler, http.MethodPost, "/v1/characters/"+characterID+"/narrative", testOwner, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	var resp AppendTurnResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestNarrativeHandler_AppendDefaults(t *testing.T) {
	handler, store, _ := newTestEnv(t)
	c := seedCharacter(t, store, testOwner, character.Identity{Name: "Arden", Race: "Human", Class: "Ranger"})

	resp := appendTurn(t, handler, c.ID, `{"player_action":"I open the door","gm_response":"It creaks loudly."}`)

	if _, err := uuid.Parse(resp.Turn.TurnID); err != nil {
		t.Errorf("Expected a server-assigned turn UUID, got %q", resp.Turn.TurnID)
	}
	if resp.Turn.Timestamp.IsZero() {
		t.Error("Expected a server-assigned timestamp")
	}
	if resp.TotalTurns != 1 {
		t.Errorf("Expected total_turns 1, got %d", resp.TotalTurns)
	}
}

func TestNarrativeHandler_AppendDuplicateTurnIDOverwrites(t *testing.T) {
	handler, store, _ := newTestEnv(t)
	c := seedCharacter(t, store, testOwner, character.Identity{Name: "Arden", Race: "Human", Class: "Ranger"})

	turnID := character.NewID()
	appendTurn(t, handler, c.ID, fmt.Sprintf(`{"turn_id":%q,"player_action":"first","gm_response":"first response"}`, turnID))
	resp := appendTurn(t, handler, c.ID, fmt.Sprintf(`{"turn_id":%q,"player_action":"retry","gm_response":"second response"}`, turnID))

	if resp.TotalTurns != 1 {
		t.Errorf("Expected overwrite to keep total at 1, got %d", resp.TotalTurns)
	}

	rr := doRequest(handler, http.MethodGet, "/v1/characters/"+c.ID+"/narrative", "", "")
	var q QueryTurnsResponse
	if err := json.NewDecoder(rr.Body).Decode(&q); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(q.Turns) != 1 || q.Turns[0].PlayerAction != "retry" {
		t.Errorf("Expected the overwritten turn, got %+v", q.Turns)
	}
}

func TestNarrativeHandler_QueryWindow(t *testing.T) {
	handler, store, _ := newTestEnv(t)
	c := seedCharacter(t, store, testOwner, character.Identity{Name: "Arden", Race: "Human", Class: "Ranger"})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		body := fmt.Sprintf(`{"player_action":"action %d","gm_response":"response %d","timestamp":%q}`,
			i, i, base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339))
		appendTurn(t, handler, c.ID, body)
	}

	rr := doRequest(handler, http.MethodGet, "/v1/characters/"+c.ID+"/narrative?n=3", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}
	var resp QueryTurnsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.RequestedN != 3 || resp.ReturnedCount != 3 || resp.TotalAvailable != 5 {
		t.Errorf("Expected requested=3 returned=3 total=5, got %+v", resp)
	}
	// The three most recent turns, in chronological order.
	for i, want := range []string{"action 2", "action 3", "action 4"} {
		if resp.Turns[i].PlayerAction != want {
			t.Errorf("Turn %d: expected %q, got %q", i, want, resp.Turns[i].PlayerAction)
		}
	}

	// since is a strict lower bound.
	sinceURL := "/v1/characters/" + c.ID + "/narrative?since=" + base.Add(2*time.Minute).Format(time.RFC3339)
	rr = doRequest(handler, http.MethodGet, sinceURL, "", "")
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ReturnedCount != 2 {
		t.Errorf("Expected 2 turns strictly after the bound, got %d", resp.ReturnedCount)
	}
}

func TestNarrativeHandler_QueryEmpty(t *testing.T) {
	handler, store, _ := newTestEnv(t)
	c := seedCharacter(t, store, testOwner, character.Identity{Name: "Arden", Race: "Human", Class: "Ranger"})

	rr := doRequest(handler, http.MethodGet, "/v1/characters/"+c.ID+"/narrative", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for empty history, got %d", rr.Code)
	}
	var resp QueryTurnsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ReturnedCount != 0 || resp.TotalAvailable != 0 {
		t.Errorf("Expected an empty window, got %+v", resp)
	}
	if resp.Turns == nil {
		t.Error("Expected turns to be an empty array, not null")
	}
}

func TestNarrativeHandler_Errors(t *testing.T) {
	handler, store, cfg := newTestEnv(t)
	c := seedCharacter(t, store, testOwner, character.Identity{Name: "Arden", Race: "Human", Class: "Ranger"})

	longAction := make([]byte, character.MaxPlayerActionLen+1)
	for i := range longAction {
		longAction[i] = 'a'
	}

	tests := []struct {
		name           string
		method         string
		caller         string
		path           string
		body           string
		expectedStatus int
	}{
		{"append without owner header", http.MethodPost, "", "", `{"player_action":"a","gm_response":"b"}`, http.StatusBadRequest},
		{"append by non-owner", http.MethodPost, "intruder", "", `{"player_action":"a","gm_response":"b"}`, http.StatusForbidden},
		{"invalid JSON", http.MethodPost, testOwner, "", `{"player_action":`, http.StatusBadRequest},
		{"malformed turn_id", http.MethodPost, testOwner, "", `{"turn_id":"nope","player_action":"a","gm_response":"b"}`, http.StatusUnprocessableEntity},
		{"turn_number below 1", http.MethodPost, testOwner, "", `{"turn_number":0,"player_action":"a","gm_response":"b"}`, http.StatusUnprocessableEntity},
		{"oversized player_action", http.MethodPost, testOwner, "", fmt.Sprintf(`{"player_action":%q,"gm_response":"b"}`, longAction), http.StatusUnprocessableEntity},
		{"n above the bound", http.MethodGet, "", fmt.Sprintf("?n=%d", cfg.NarrativeQueryMax+1), "", http.StatusBadRequest},
		{"n zero", http.MethodGet, "", "?n=0", "", http.StatusBadRequest},
		{"malformed since", http.MethodGet, "", "?since=yesterday", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(handler, tt.method, "/v1/characters/"+c.ID+"/narrative"+tt.path, tt.caller, tt.body)
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Response body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}
}
