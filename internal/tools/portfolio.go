// ABOUTME: Exchange proxy tools: spot prices and portfolio snapshots.
// ABOUTME: Uses pass-through credentials from the auth context, never persisted.

package tools

import (
	"context"
	"encoding/json"

	"github.com/fortunamind/persistent-gateway/internal/auth"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/upstream"
)

// GetPriceTool fetches a spot price from the exchange.
type GetPriceTool struct {
	Exchange *upstream.Client
}

func (t *GetPriceTool) Schema() Schema {
	return Schema{
		Name:        "get_price",
		Description: "Get the current spot price for a symbol from the exchange",
		Category:    "market",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"symbol": {"type": "string", "description": "Ticker symbol, e.g. BTC-USD"}},
			"required": ["symbol"]
		}`),
	}
}

type getPriceInput struct {
	Symbol string `json:"symbol"`
}

func (t *GetPriceTool) Execute(ctx context.Context, authCtx *auth.Context, params json.RawMessage) (json.RawMessage, error) {
	var in getPriceInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, InvalidParam("", "parameters must be a JSON object")
	}
	if in.Symbol == "" {
		return nil, InvalidParam("symbol", "is required")
	}

	price, err := t.Exchange.GetPrice(ctx, authCtx.Upstream, in.Symbol)
	if err != nil {
		return nil, err
	}
	return json.Marshal(price)
}

// GetPortfolioTool fetches the caller's exchange portfolio.
type GetPortfolioTool struct {
	Exchange *upstream.Client
}

func (t *GetPortfolioTool) Schema() Schema {
	return Schema{
		Name:        "get_portfolio",
		Description: "Get the account portfolio from the exchange (requires exchange API credentials)",
		Category:    "market",
		Permissions: []Permission{PermissionRead},
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *GetPortfolioTool) Execute(ctx context.Context, authCtx *auth.Context, _ json.RawMessage) (json.RawMessage, error) {
	if authCtx.Upstream.Empty() {
		return nil, InvalidParam("", "exchange credentials are required; pass X-Upstream-Api-Key and X-Upstream-Api-Secret")
	}

	portfolio, err := t.Exchange.GetPortfolio(ctx, authCtx.Upstream)
	if err != nil {
		return nil, err
	}
	return json.Marshal(portfolio)
}

// RegisterBuiltins registers the full built-in tool set on the registry.
// Called once at startup.
func RegisterBuiltins(registry *Registry, backend store.Backend, exchange *upstream.Client) error {
	all := []Tool{
		&StoreJournalEntryTool{Store: backend},
		&GetJournalEntriesTool{Store: backend},
		&GetJournalEntryTool{Store: backend},
		&SearchJournalEntriesTool{Store: backend},
		&DeleteJournalEntryTool{Store: backend},
		&SetPreferenceTool{Store: backend},
		&GetPreferenceTool{Store: backend},
		&GetUserStatsTool{Store: backend},
	}
	if exchange != nil {
		all = append(all,
			&GetPriceTool{Exchange: exchange},
			&GetPortfolioTool{Exchange: exchange},
		)
	}

	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
