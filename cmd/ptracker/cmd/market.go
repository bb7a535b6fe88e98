package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
)

var networthCmd = &cobra.Command{
	Use:   "networth",
	Short: "Value every portfolio against live quotes",
	RunE:  runNetworth,
}

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Show the live quote for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

var historyCmd = &cobra.Command{
	Use:   "history SYMBOL",
	Short: "Show hourly closes for the latest trading session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var searchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Search for symbols",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var detailFlag bool

func init() {
	rootCmd.AddCommand(networthCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(searchCmd)

	networthCmd.Flags().BoolVar(&detailFlag, "detail", false, "break down every portfolio")
}

func runNetworth(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	nw, err := c.NetWorth(cmd.Context())
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(nw)
	}

	if detailFlag {
		for _, p := range nw.Portfolios {
			printPortfolioValuation(p)
			fmt.Println()
		}
	} else if len(nw.Portfolios) > 0 {
		rows := make([][]string, len(nw.Portfolios))
		for i, p := range nw.Portfolios {
			rows[i] = []string{
				p.Name,
				p.MarketValue.StringFixed(2),
				output.Signed(p.DaysChange),
				p.BookValue.StringFixed(2),
				output.Signed(p.TotalReturn),
			}
		}
		output.Table([]string{"Portfolio", "Value", "Day", "Cost", "Return"}, rows)
		fmt.Println()
	}

	currency := viper.GetString("currency")
	output.Header("Net worth")
	output.KeyValue([][]string{
		{"Market value", output.Money(nw.MarketValue, currency)},
		{"Day's change", output.Signed(nw.DaysChange)},
		{"Book value", output.Money(nw.BookValue, currency)},
		{"Total return", output.Signed(nw.TotalReturn)},
		{"Priced at", nw.PricedAt.Local().Format(time.DateTime)},
	})
	return nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	q, err := c.Quote(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(q)
	}

	output.Header(q.Symbol + "  " + q.LongName)
	fmt.Println()
	output.KeyValue([][]string{
		{"Price", output.Money(q.Price, q.Currency)},
		{"Change", output.Signed(q.Change) + " (" + q.ChangePercent.StringFixed(2) + "%)"},
		{"Exchange", q.Exchange},
		{"Market time", q.MarketTime.Local().Format(time.DateTime)},
	})
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	h, err := c.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(h)
	}

	output.Header(fmt.Sprintf("%s  %s", h.Symbol, h.Start.Format(time.DateOnly)))
	fmt.Println()
	rows := make([][]string, len(h.Points))
	for i, p := range h.Points {
		rows[i] = []string{p.Timestamp.Local().Format("15:04"), p.Close.StringFixed(2)}
	}
	output.Table([]string{"Time", "Close"}, rows)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	results, err := c.Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(results)
	}
	if len(results) == 0 {
		output.Info("No matches")
		return nil
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		name := r.LongName
		if name == "" {
			name = r.ShortName
		}
		rows[i] = []string{r.Symbol, name, r.QuoteType, r.Exchange}
	}
	output.Table([]string{"Symbol", "Name", "Type", "Exchange"}, rows)
	return nil
}
