package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/genio/internal/domain"
)

// MarketStore persiste mercados, posiciones y contadores de protocolo.
// El host garantiza que las transiciones sobre un mismo mercado están
// serializadas: el store no necesita locking por mercado propio.
type MarketStore interface {
	// SaveMarket inserta o actualiza el mercado completo.
	SaveMarket(ctx context.Context, m domain.Market) error

	// GetMarket devuelve el mercado o domain.ErrMarketNotFound.
	GetMarket(ctx context.Context, id string) (domain.Market, error)

	// ListDue devuelve los mercados no resueltos con deadline <= now.
	ListDue(ctx context.Context, now time.Time) ([]domain.Market, error)

	// ListMarkets devuelve todos los mercados, más recientes primero.
	ListMarkets(ctx context.Context) ([]domain.Market, error)

	// SavePosition inserta o actualiza una posición.
	SavePosition(ctx context.Context, p domain.Position) error

	// GetPosition devuelve la posición o domain.ErrPositionNotFound.
	GetPosition(ctx context.Context, marketID, holder string, outcome int) (domain.Position, error)

	// PositionsByHolder devuelve las posiciones del holder en el mercado.
	PositionsByHolder(ctx context.Context, marketID, holder string) ([]domain.Position, error)

	// BumpStats acumula volumen y fees en los contadores de protocolo.
	BumpStats(ctx context.Context, markets, volume, fees uint64) error

	// Stats devuelve los contadores agregados de protocolo.
	Stats(ctx context.Context) (domain.ProtocolStats, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
