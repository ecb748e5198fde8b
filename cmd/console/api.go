package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lorekeeper/chronicle/pkg/character"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ListCharactersResponse struct {
	Characters []character.Summary `json:"characters"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// ContextView mirrors the context endpoint's envelope.
type ContextView struct {
	CharacterID    string                `json:"character_id"`
	PlayerState    character.PlayerState `json:"player_state"`
	HasActiveQuest bool                  `json:"has_active_quest"`
	Quest          *character.Quest      `json:"quest"`
	Combat         struct {
		Active bool                   `json:"active"`
		State  *character.CombatState `json:"state"`
	} `json:"combat"`
	Narrative struct {
		Turns     []character.NarrativeTurn `json:"turns"`
		ReturnedN int                       `json:"returned_n"`
	} `json:"narrative"`
	POIs struct {
		Sampled []character.PointOfInterest `json:"sampled"`
		Total   int                         `json:"total"`
	} `json:"pois"`
	UpdatedAt time.Time `json:"updated_at"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func doGet(client *http.Client, rawURL, userID string, out any) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func listCharacters(client *http.Client, baseURL, userID string) ([]character.Summary, int, error) {
	var resp ListCharactersResponse
	if err := doGet(client, baseURL+"/v1/characters?limit=100", userID, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to list characters: %w", err)
	}
	return resp.Characters, resp.Total, nil
}

func getContext(client *http.Client, baseURL, userID, characterID string, recentN int) (*ContextView, error) {
	u := fmt.Sprintf("%s/v1/characters/%s/context?recent_n=%d", baseURL, characterID, recentN)
	var view ContextView
	if err := doGet(client, u, userID, &view); err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}
	return &view, nil
}
