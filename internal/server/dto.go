package server

import (
	"demopilot/internal/domain"
	"demopilot/internal/engine"
)

// Request payloads

type GenerateRequest struct {
	Generator string         `json:"generator" minLength:"1" example:"shop"`
	Kind      string         `json:"kind" minLength:"1" example:"products"`
	Count     int            `json:"count,omitempty" default:"10" example:"25"`
	Args      map[string]any `json:"args,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type CleanupRequest struct {
	Generator string  `json:"generator" minLength:"1" example:"shop"`
	Kind      string  `json:"kind" minLength:"1" example:"products"`
	IDs       []int64 `json:"ids,omitempty"`
}

type PruneRequest struct {
	Days int `json:"days,omitempty" minimum:"1" doc:"Defaults to cleanup.days"`
}

type LoggingRequest struct {
	Enabled bool `json:"enabled"`
}

type DevLoginRequest struct {
	Subject     string   `json:"subject" minLength:"1"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type GenerateResponse struct {
	Success bool `json:"success"`
	engine.GenerateResult
}

type CleanupResponse struct {
	Success bool `json:"success"`
	engine.CleanupResult
}

type LogsResponse struct {
	Enabled bool              `json:"enabled"`
	Items   []domain.LogEntry `json:"items"`
}

type LoggingResponse struct {
	Enabled bool `json:"enabled"`
}

type GeneratorsResponse struct {
	Items []domain.GeneratorInfo `json:"items"`
}

type WhoAmIResponse struct {
	Subject     string   `json:"subject"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
