package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/genio/internal/domain"
)

// Console implementa ports.Notifier escribiendo a stdout.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// NotifyTrade imprime una línea por trade ejecutado.
func (c *Console) NotifyTrade(_ context.Context, r domain.TradeReceipt) error {
	fmt.Fprintf(c.out, "[%s] %s outcome=%d gross=%s net=%s shares=%s fee=%s (%d bps)\n",
		r.ExecutedAt.Format("15:04:05"), r.Side, r.Outcome,
		fmtValue(r.Gross), fmtValue(r.Net), fmtShares(r.Shares),
		fmtValue(r.Fee.Amount), r.Fee.RateBps,
	)
	if c.verbose {
		fmt.Fprintf(c.out, "  spot %d → %d | split T:%s C:%s I:%s\n",
			r.SpotBefore, r.SpotAfter,
			fmtValue(r.Fee.Split.Protocol), fmtValue(r.Fee.Split.Creator), fmtValue(r.Fee.Split.Insurance),
		)
	}
	return nil
}

// NotifyResolution imprime el resultado de una resolución.
func (c *Console) NotifyResolution(_ context.Context, m domain.Market) error {
	fmt.Fprintf(c.out, "[%s] RESOLVED %q → outcome %d | pot=%s\n",
		time.Now().Format("15:04:05"), m.Title, m.Winning, fmtValue(m.SnapshotPot))
	return nil
}

// PrintMarkets imprime la tabla de mercados.
func (c *Console) PrintMarkets(markets []domain.Market) {
	if len(markets) == 0 {
		fmt.Fprintln(c.out, "no markets")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Status", "Outcomes", "Vault", "Pot", "Win", "Deadline")

	for i, m := range markets {
		win := "-"
		if m.Winning >= 0 {
			win = fmt.Sprintf("%d", m.Winning)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateTitle(m.Title, 40),
			m.Status.String(),
			fmt.Sprintf("%d", m.NumOutcomes),
			fmtValue(m.VaultBalance),
			fmtValue(m.SnapshotPot),
			win,
			m.Deadline.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// PrintStats imprime los contadores de protocolo.
func (c *Console) PrintStats(stats domain.ProtocolStats) {
	fmt.Fprintf(c.out, "markets=%d volume=%s fees=%s\n",
		stats.TotalMarkets, fmtValue(stats.TotalVolume), fmtValue(stats.TotalFeesCollected))
}

// fmtValue formatea unidades base (1e9 = 1.0) con 4 decimales.
func fmtValue(v uint64) string {
	return fmt.Sprintf("%.4f", float64(v)/domain.ShareScale)
}

// fmtShares formatea shares en millones para lectura rápida.
func fmtShares(v uint64) string {
	return fmt.Sprintf("%.2fM", float64(v)/domain.ShareScale/1_000_000)
}
