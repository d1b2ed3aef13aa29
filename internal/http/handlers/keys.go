package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/service"
)

// KeysHandler handles the dashboard API key endpoints.
type KeysHandler struct {
	keys *service.APIKeyService
}

// NewKeysHandler creates a new API key handler.
func NewKeysHandler(keys *service.APIKeyService) *KeysHandler {
	return &KeysHandler{keys: keys}
}

// tenantFromContext returns the tenant ID for huma operations behind
// the auth middleware, or "" when no identity is present.
func tenantFromContext(ctx context.Context) string {
	identity := mw.GetIdentity(ctx)
	if identity == nil {
		return ""
	}
	return identity.TenantID
}

// APIKeyResponse represents an API key in responses. The raw secret is
// never part of it.
type APIKeyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	KeyPrefix  string `json:"keyPrefix"`
	IsActive   bool   `json:"isActive"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
	RevokedAt  string `json:"revokedAt,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ListKeysOutput represents the API key list response.
type ListKeysOutput struct {
	Body struct {
		Keys []APIKeyResponse `json:"keys"`
	}
}

// ListKeys handles listing API keys.
func (h *KeysHandler) ListKeys(ctx context.Context, input *struct{}) (*ListKeysOutput, error) {
	tenantID := tenantFromContext(ctx)
	if tenantID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	keys, err := h.keys.ListKeys(ctx, tenantID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list API keys")
	}

	var responses []APIKeyResponse
	for _, key := range keys {
		resp := APIKeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			KeyPrefix: key.KeyPrefix,
			IsActive:  key.IsActive,
			CreatedAt: key.CreatedAt.Format(time.RFC3339),
		}
		if key.LastUsedAt != nil {
			resp.LastUsedAt = key.LastUsedAt.Format(time.RFC3339)
		}
		if key.RevokedAt != nil {
			resp.RevokedAt = key.RevokedAt.Format(time.RFC3339)
		}
		responses = append(responses, resp)
	}

	return &ListKeysOutput{
		Body: struct {
			Keys []APIKeyResponse `json:"keys"`
		}{
			Keys: responses,
		},
	}, nil
}

// CreateKeyInput represents an API key creation request.
type CreateKeyInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"Descriptive name for the key"`
	}
}

// CreateKeyOutput represents an API key creation response.
type CreateKeyOutput struct {
	Body struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Key       string `json:"key" doc:"Full API key - only shown once!"`
		KeyPrefix string `json:"keyPrefix"`
		CreatedAt string `json:"createdAt"`
	}
}

// CreateKey handles API key creation.
func (h *KeysHandler) CreateKey(ctx context.Context, input *CreateKeyInput) (*CreateKeyOutput, error) {
	tenantID := tenantFromContext(ctx)
	if tenantID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	result, err := h.keys.CreateKey(ctx, tenantID, service.CreateKeyInput{Name: input.Body.Name})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create API key")
	}

	return &CreateKeyOutput{
		Body: struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Key       string `json:"key" doc:"Full API key - only shown once!"`
			KeyPrefix string `json:"keyPrefix"`
			CreatedAt string `json:"createdAt"`
		}{
			ID:        result.ID,
			Name:      result.Name,
			Key:       result.Key,
			KeyPrefix: result.KeyPrefix,
			CreatedAt: result.CreatedAt.Format(time.RFC3339),
		},
	}, nil
}

// RevokeKeyInput represents an API key revocation request.
type RevokeKeyInput struct {
	ID string `path:"id" doc:"API key ID to revoke"`
}

// RevokeKeyOutput represents an API key revocation response.
type RevokeKeyOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// RevokeKey handles API key revocation.
func (h *KeysHandler) RevokeKey(ctx context.Context, input *RevokeKeyInput) (*RevokeKeyOutput, error) {
	tenantID := tenantFromContext(ctx)
	if tenantID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	if err := h.keys.RevokeKey(ctx, tenantID, input.ID); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return nil, huma.Error404NotFound("API key not found")
		}
		return nil, huma.Error500InternalServerError("failed to revoke API key")
	}

	return &RevokeKeyOutput{
		Body: struct {
			Success bool `json:"success"`
		}{
			Success: true,
		},
	}, nil
}
