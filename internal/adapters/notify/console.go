package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, table: true}
}

// NotifyMarkets imprime los mercados separados en vivos y pasados.
func (c *Console) NotifyMarkets(_ context.Context, markets []domain.Market, now time.Time) error {
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] No markets found\n", now.Format("15:04:05"))
		return nil
	}

	live, past := domain.SplitMarkets(markets, now)
	fmt.Fprintf(c.out, "\n[%s] %d markets: %d live, %d past\n",
		now.Format("15:04:05"), len(markets), len(live), len(past))

	if !c.table {
		c.printCompact(markets, now)
		return nil
	}

	if len(live) > 0 {
		fmt.Fprintln(c.out, "LIVE")
		c.printMarketTable(live, now)
	}
	if len(past) > 0 {
		fmt.Fprintln(c.out, "PAST")
		c.printMarketTable(past, now)
	}
	return nil
}

// NotifyPortfolio imprime las posiciones del usuario con su estado derivado.
func (c *Console) NotifyPortfolio(_ context.Context, pf domain.Portfolio) error {
	if pf.User == nil {
		fmt.Fprintln(c.out, "No wallet connected")
		return nil
	}
	if pf.Empty() {
		fmt.Fprintf(c.out, "No positions for %s\n", shortAddr(pf.User.Hex()))
		return nil
	}

	fmt.Fprintf(c.out, "\nPortfolio %s: %d positions\n", shortAddr(pf.User.Hex()), len(pf.Entries))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Pick", "Stake", "Pool", "Status")

	claimable := 0
	for _, e := range pf.Entries {
		view := domain.DerivePositionStatus(e.Market, e.Position)
		if view.Claimable {
			claimable++
		}
		labels := domain.OutcomeLabels(e.Market.Title)
		pick := "-"
		if e.Position.Exists() && e.Position.Outcome.Valid() {
			pick = labels[e.Position.Outcome]
		}
		table.Append(
			fmt.Sprintf("%d", e.MarketID),
			compactName(e.Market.Title, 40),
			pick,
			domain.FormatAmount(e.Position.Amount),
			domain.FormatAmount(e.PoolTotal),
			view.Status.String(),
		)
	}
	table.Render()

	if claimable > 0 {
		fmt.Fprintf(c.out, "  %d reward(s) ready to claim\n", claimable)
	}
	return nil
}

// printCompact imprime una línea por mercado.
func (c *Console) printCompact(markets []domain.Market, now time.Time) {
	var sb strings.Builder
	for _, m := range markets {
		fmt.Fprintf(&sb, "  #%d %s [%s]\n", m.ID, compactName(m.Title, 40), domain.DerivePhase(m, now))
	}
	fmt.Fprint(c.out, sb.String())
}

// printMarketTable imprime la tabla de mercados con su fase y deadline.
func (c *Console) printMarketTable(markets []domain.Market, now time.Time) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Outcomes", "Deadline", "Status")

	for _, m := range markets {
		phase := domain.DerivePhase(m, now)
		status := phase.String()
		if phase == domain.PhaseResolved && m.WinningOutcome.Valid() {
			status = fmt.Sprintf("%s: %s", status, domain.OutcomeLabels(m.Title)[m.WinningOutcome])
		}
		labels := domain.OutcomeLabels(m.Title)
		table.Append(
			fmt.Sprintf("%d", m.ID),
			compactName(m.Title, 40),
			strings.Join(labels[:], " / "),
			m.Deadline().Local().Format("2006-01-02 15:04"),
			status,
		)
	}
	table.Render()
}

// compactName trunca s a max runas con "...".
func compactName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// shortAddr abrevia una dirección hex a 0x1234…abcd.
func shortAddr(hex string) string {
	if len(hex) < 10 {
		return hex
	}
	return hex[:6] + "…" + hex[len(hex)-4:]
}
