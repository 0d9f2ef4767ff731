// ABOUTME: Trading journal tools: store, list, fetch, search, and delete entries.
// ABOUTME: All operations are scoped to the authenticated user's handle.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

// maxEntryTextLen bounds a single journal entry.
const maxEntryTextLen = 50000

// StoreJournalEntryTool persists one journal entry.
type StoreJournalEntryTool struct {
	Store store.Backend
}

func (t *StoreJournalEntryTool) Schema() Schema {
	return Schema{
		Name:        "store_journal_entry",
		Description: "Store a trading journal entry with optional tags and metadata",
		Category:    "journal",
		Permissions: []Permission{PermissionWrite},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"entry_text": {"type": "string", "description": "The journal entry content"},
				"entry_type": {"type": "string", "enum": ["trade", "analysis", "reflection", "observation"]},
				"tags": {"type": "array", "items": {"type": "string"}},
				"metadata": {"type": "object"}
			},
			"required": ["entry_text"]
		}`),
		OutputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"entry_id": {"type": "string"}, "created_at": {"type": "string"}}
		}`),
	}
}

type storeEntryInput struct {
	EntryText string          `json:"entry_text"`
	EntryType string          `json:"entry_type"`
	Tags      []string        `json:"tags"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (t *StoreJournalEntryTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in storeEntryInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.EntryText == "" {
		return nil, InvalidParam("entry_text", "is required")
	}
	if len(in.EntryText) > maxEntryTextLen {
		return nil, InvalidParam("entry_text", fmt.Sprintf("exceeds %d characters", maxEntryTextLen))
	}

	// Tier entry quota: starter has a finite journal allowance.
	if limit := subscription.Limits(authCtx.Tier).JournalEntries; limit != subscription.Unlimited {
		stats, err := t.Store.UserStats(ctx, authCtx.UserHandle)
		if err != nil {
			return nil, err
		}
		if stats.EntriesTotal >= limit {
			return nil, InvalidParam("entry_text",
				fmt.Sprintf("journal entry limit (%d) reached for tier %s", limit, authCtx.Tier))
		}
	}

	id, err := t.Store.StoreJournalEntry(ctx, authCtx.UserHandle, in.EntryText, in.EntryType, in.Tags, in.Metadata)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{
		"entry_id":   id,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetJournalEntriesTool lists journal entries with optional filters.
type GetJournalEntriesTool struct {
	Store store.Backend
}

func (t *GetJournalEntriesTool) Schema() Schema {
	return Schema{
		Name:        "get_journal_entries",
		Description: "List journal entries, newest first, with optional type/tag/date filters",
		Category:    "journal",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"entry_type": {"type": "string"},
				"tag": {"type": "string"},
				"since": {"type": "string", "format": "date-time"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 200},
				"offset": {"type": "integer", "minimum": 0}
			}
		}`),
	}
}

type getEntriesInput struct {
	EntryType string `json:"entry_type"`
	Tag       string `json:"tag"`
	Since     string `json:"since"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

func (t *GetJournalEntriesTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in getEntriesInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.Limit < 0 || in.Limit > 200 {
		return nil, InvalidParam("limit", "must be between 1 and 200")
	}
	if in.Offset < 0 {
		return nil, InvalidParam("offset", "must be non-negative")
	}

	filter := store.EntryFilter{EntryType: in.EntryType, Tag: in.Tag}
	if in.Since != "" {
		since, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return nil, InvalidParam("since", "must be an RFC 3339 timestamp")
		}
		filter.Since = &since
	}

	entries, err := t.Store.GetJournalEntries(ctx, authCtx.UserHandle, filter, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*store.JournalEntry{}
	}

	return json.Marshal(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetJournalEntryTool fetches a single entry by ID.
type GetJournalEntryTool struct {
	Store store.Backend
}

func (t *GetJournalEntryTool) Schema() Schema {
	return Schema{
		Name:        "get_journal_entry",
		Description: "Fetch a single journal entry by its ID",
		Category:    "journal",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"entry_id": {"type": "string"}},
			"required": ["entry_id"]
		}`),
	}
}

type getEntryInput struct {
	EntryID string `json:"entry_id"`
}

func (t *GetJournalEntryTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in getEntryInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.EntryID == "" {
		return nil, InvalidParam("entry_id", "is required")
	}

	entry, err := t.Store.GetJournalEntry(ctx, authCtx.UserHandle, in.EntryID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entry)
}

// SearchJournalEntriesTool does substring search over entry text.
type SearchJournalEntriesTool struct {
	Store store.Backend
}

func (t *SearchJournalEntriesTool) Schema() Schema {
	return Schema{
		Name:        "search_journal_entries",
		Description: "Search journal entries by text content",
		Category:    "journal",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 200}
			},
			"required": ["query"]
		}`),
	}
}

type searchEntriesInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *SearchJournalEntriesTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in searchEntriesInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.Query == "" {
		return nil, InvalidParam("query", "is required")
	}

	entries, err := t.Store.SearchJournalEntries(ctx, authCtx.UserHandle, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*store.JournalEntry{}
	}

	return json.Marshal(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// DeleteJournalEntryTool removes an entry. Deletion is soft below the
// enterprise tier; enterprise callers delete physically.
type DeleteJournalEntryTool struct {
	Store store.Backend
}

func (t *DeleteJournalEntryTool) Schema() Schema {
	return Schema{
		Name:        "delete_journal_entry",
		Description: "Delete a journal entry",
		Category:    "journal",
		Permissions: []Permission{PermissionWrite},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"entry_id": {"type": "string"}},
			"required": ["entry_id"]
		}`),
	}
}

func (t *DeleteJournalEntryTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in getEntryInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.EntryID == "" {
		return nil, InvalidParam("entry_id", "is required")
	}

	hard := authCtx.Tier == subscription.TierEnterprise
	if err := t.Store.DeleteJournalEntry(ctx, authCtx.UserHandle, in.EntryID, hard); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "deleted", "entry_id": in.EntryID})
}
