package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

// Model is a catalogue entry reduced to what call pricing needs. Prices are
// micro-dollars per token.
type Model struct {
	ID                       string
	Name                     string
	ContextWindow            int
	PromptPriceMicrosUSD     int
	CompletionPriceMicrosUSD int
	SupportsReasoning        bool
}

type catalogueEntry struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	ContextLength       int      `json:"context_length"`
	SupportedParameters []string `json:"supported_parameters"`
	Pricing             struct {
		Prompt     json.RawMessage `json:"prompt"`
		Completion json.RawMessage `json:"completion"`
	} `json:"pricing"`
	TopProvider struct {
		ContextLength int `json:"context_length"`
	} `json:"top_provider"`
}

// ListModels reads the account-scoped catalogue and falls back to the
// public one on deployments that do not serve it.
func (c Client) ListModels(ctx context.Context) ([]Model, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	models, err := c.fetchCatalogue(ctx, "/models/user")
	var statusErr StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusMethodNotAllowed) {
		return c.fetchCatalogue(ctx, "/models")
	}
	return models, err
}

func (c Client) fetchCatalogue(ctx context.Context, path string) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build openrouter models request: %w", err)
	}
	resp, err := c.send(req, "application/json")
	if err != nil {
		var statusErr StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}
		return nil, fmt.Errorf("request openrouter models: %w", err)
	}
	defer resp.Body.Close()

	var catalogue struct {
		Data []catalogueEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalogue); err != nil {
		return nil, fmt.Errorf("decode openrouter models response: %w", err)
	}

	models := make([]Model, 0, len(catalogue.Data))
	for _, entry := range catalogue.Data {
		if model, ok := entry.toModel(); ok {
			models = append(models, model)
		}
	}
	return models, nil
}

func (e catalogueEntry) toModel() (Model, bool) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return Model{}, false
	}
	model := Model{
		ID:            id,
		Name:          strings.TrimSpace(e.Name),
		ContextWindow: e.ContextLength,
	}
	if model.Name == "" {
		model.Name = id
	}
	if model.ContextWindow <= 0 {
		model.ContextWindow = e.TopProvider.ContextLength
	}
	model.PromptPriceMicrosUSD, _ = usdToMicros(e.Pricing.Prompt)
	model.CompletionPriceMicrosUSD, _ = usdToMicros(e.Pricing.Completion)
	for _, parameter := range e.SupportedParameters {
		switch strings.ToLower(strings.TrimSpace(parameter)) {
		case "reasoning", "reasoning_effort":
			model.SupportsReasoning = true
		}
	}
	return model, true
}

// FindModel returns the catalogue entry with the given id.
func FindModel(models []Model, id string) (Model, bool) {
	target := strings.TrimSpace(id)
	for _, model := range models {
		if model.ID == target {
			return model, true
		}
	}
	return Model{}, false
}

// usdToMicros converts a dollar amount sent as a JSON string or number.
// Negative and unparseable amounts report false.
func usdToMicros(raw json.RawMessage) (int, bool) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return 0, false
	}

	dollars, err := strconv.ParseFloat(text, 64)
	if err != nil {
		rat, ok := new(big.Rat).SetString(text)
		if !ok {
			return 0, false
		}
		dollars, _ = rat.Float64()
	}
	if dollars < 0 || math.IsNaN(dollars) || math.IsInf(dollars, 0) {
		return 0, false
	}
	return int(math.Round(dollars * 1_000_000)), true
}
