package main

import (
	"fmt"
	"strings"

	"github.com/Simplici0/invoicecalc/internal/format"
	"github.com/Simplici0/invoicecalc/internal/workspace"
)

// renderInvoiceText lays out the snapshot as a plain-text invoice.
func renderInvoiceText(snap workspace.Snapshot, symbol string) string {
	money := func(v float64) string { return format.Money(symbol, v) }

	var b strings.Builder
	b.WriteString("Invoice Calculator\n\n")

	b.WriteString("Items:\n")
	if len(snap.Items) == 0 {
		b.WriteString("(none)\n")
	}
	for _, it := range snap.Items {
		fmt.Fprintf(&b, "- %s: cost %s, markup %s, selling %s%s\n",
			it.Name,
			money(it.CostPrice),
			format.Percent1(it.MarkupPercentage),
			symbol,
			format.Fixed2(it.SellingPrice),
		)
	}

	t := snap.Totals
	b.WriteString("\nTotals:\n")
	fmt.Fprintf(&b, "Total Cost Price: %s\n", money(t.TotalCostPrice))
	fmt.Fprintf(&b, "Total Selling Price: %s\n", money(t.TotalSellingPrice))
	fmt.Fprintf(&b, "Total Profit: %s\n", money(t.TotalProfit))
	fmt.Fprintf(&b, "Average Markup: %s\n", format.Percent1(t.AverageMarkup))

	s := snap.Split
	creatorPct := format.Amount(s.SplitPercentage)
	platformPct := format.Amount(100 - s.SplitPercentage)
	b.WriteString("\nProfit split:\n")
	fmt.Fprintf(&b, "Base price: %s\n", money(s.BasePrice))
	fmt.Fprintf(&b, "Creator markup: %s\n", money(s.CreatorMarkup))
	fmt.Fprintf(&b, "Final price with markup: %s\n", money(s.FinalPrice))
	fmt.Fprintf(&b, "Creator (%s%%): %s\n", creatorPct, money(s.CreatorShare))
	fmt.Fprintf(&b, "Platform (%s%%): %s\n", platformPct, money(s.CounterpartyShare))
	fmt.Fprintf(&b, "Platform total: %s (initial profit %s + %s)\n",
		money(s.CounterpartyTotal), money(s.InitialProfit), money(s.CounterpartyShare))
	if s.MarkupRequired {
		b.WriteString("Warning: creator markup is required\n")
	}

	return b.String()
}
