package ports

import (
	"context"

	"github.com/alejandrodnm/genio/internal/domain"
)

// Notifier recibe los registros que produce el engine.
type Notifier interface {
	// NotifyTrade recibe el recibo de cada trade ejecutado.
	NotifyTrade(ctx context.Context, r domain.TradeReceipt) error

	// NotifyResolution recibe el mercado recién resuelto.
	NotifyResolution(ctx context.Context, m domain.Market) error
}
