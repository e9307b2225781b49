package ports

import (
	"context"
	"time"
)

// PriceReading es una lectura de precio externa con su instante de
// publicación. Price va en centavos de USD.
type PriceReading struct {
	Symbol      string
	Price       uint64
	PublishedAt time.Time
}

// Fresh devuelve true si la lectura tiene como mucho maxAge de antigüedad.
func (r PriceReading) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.PublishedAt) <= maxAge
}

// PriceFeed entrega lecturas de precio para la resolución automatizada.
type PriceFeed interface {
	// Latest devuelve la última lectura publicada para el símbolo.
	Latest(ctx context.Context, symbol string) (PriceReading, error)
}
