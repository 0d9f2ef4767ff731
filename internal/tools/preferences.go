// ABOUTME: User preference tools plus the user statistics tool.

package tools

import (
	"context"
	"encoding/json"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/store"
)

// SetPreferenceTool upserts one preference value.
type SetPreferenceTool struct {
	Store store.Backend
}

func (t *SetPreferenceTool) Schema() Schema {
	return Schema{
		Name:        "set_preference",
		Description: "Set a user preference to a JSON value",
		Category:    "preferences",
		Permissions: []Permission{PermissionWrite},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"key": {"type": "string"},
				"value": {}
			},
			"required": ["key", "value"]
		}`),
	}
}

type setPreferenceInput struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (t *SetPreferenceTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in setPreferenceInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.Key == "" {
		return nil, InvalidParam("key", "is required")
	}
	if len(in.Value) == 0 {
		return nil, InvalidParam("value", "is required")
	}

	if err := t.Store.SetPreference(ctx, authCtx.UserHandle, in.Key, in.Value); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "saved", "key": in.Key})
}

// GetPreferenceTool fetches one preference by key.
type GetPreferenceTool struct {
	Store store.Backend
}

func (t *GetPreferenceTool) Schema() Schema {
	return Schema{
		Name:        "get_preference",
		Description: "Get a user preference by key",
		Category:    "preferences",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"key": {"type": "string"}},
			"required": ["key"]
		}`),
	}
}

type getPreferenceInput struct {
	Key string `json:"key"`
}

func (t *GetPreferenceTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in getPreferenceInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.Key == "" {
		return nil, InvalidParam("key", "is required")
	}

	pref, err := t.Store.GetPreference(ctx, authCtx.UserHandle, in.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pref)
}

// GetUserStatsTool summarizes the caller's stored footprint.
type GetUserStatsTool struct {
	Store store.Backend
}

func (t *GetUserStatsTool) Schema() Schema {
	return Schema{
		Name:        "get_user_stats",
		Description: "Summarize journal usage and storage for the current user",
		Category:    "account",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *GetUserStatsTool) Execute(ctx context.Context, authCtx *auth.Context, _ json.RawMessage) (json.RawMessage, error) {
	stats, err := t.Store.UserStats(ctx, authCtx.UserHandle)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"stats": stats,
		"tier":  authCtx.Tier,
	})
}
