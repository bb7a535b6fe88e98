package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/client"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
)

var lotCmd = &cobra.Command{
	Use:     "lot",
	Aliases: []string{"lots"},
	Short:   "Lot commands",
	Long:    "Record, edit and delete purchase lots.",
}

var lotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every lot you hold",
	RunE:  runLotList,
}

var lotAddCmd = &cobra.Command{
	Use:   "add PORTFOLIO_ID ASSET_ID",
	Short: "Record a purchase lot",
	Args:  cobra.ExactArgs(2),
	RunE:  runLotAdd,
}

var lotUpdateCmd = &cobra.Command{
	Use:   "update LOT_ID",
	Short: "Edit a lot's quantity, unit price or date",
	Args:  cobra.ExactArgs(1),
	RunE:  runLotUpdate,
}

var lotDeleteCmd = &cobra.Command{
	Use:   "delete LOT_ID",
	Short: "Delete a lot",
	Args:  cobra.ExactArgs(1),
	RunE:  runLotDelete,
}

var (
	quantityFlag  string
	unitPriceFlag string
	dateFlag      string
)

func init() {
	rootCmd.AddCommand(lotCmd)
	lotCmd.AddCommand(lotListCmd)
	lotCmd.AddCommand(lotAddCmd)
	lotCmd.AddCommand(lotUpdateCmd)
	lotCmd.AddCommand(lotDeleteCmd)

	for _, c := range []*cobra.Command{lotAddCmd, lotUpdateCmd} {
		c.Flags().StringVarP(&quantityFlag, "quantity", "q", "", "number of units")
		c.Flags().StringVarP(&unitPriceFlag, "price", "p", "", "price paid per unit")
		c.Flags().StringVarP(&dateFlag, "date", "d", "", "acquisition date, YYYY-MM-DD")
	}
	lotAddCmd.MarkFlagRequired("quantity")
	lotAddCmd.MarkFlagRequired("price")
}

func runLotList(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	lots, err := c.ListLots(cmd.Context())
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(lots)
	}
	if len(lots) == 0 {
		output.Info("No lots recorded")
		return nil
	}

	output.Header("Lots")
	fmt.Println()
	printLots(lots, true)
	return nil
}

func runLotAdd(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}
	if err := checkDecimals(); err != nil {
		return err
	}

	date := dateFlag
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}

	lot, err := c.AddLot(cmd.Context(), args[0], client.AddLotRequest{
		AssetID:      args[1],
		Quantity:     quantityFlag,
		UnitPrice:    unitPriceFlag,
		AcquiredDate: date,
	})
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(lot)
	}
	output.Success("Lot recorded")
	fmt.Println()
	output.KeyValue([][]string{
		{"ID", lot.ID},
		{"Quantity", lot.Quantity.String()},
		{"Unit price", lot.UnitPrice.String()},
		{"Cost basis", lot.CostBasis.StringFixed(2)},
		{"Acquired", lot.AcquiredDate.Format(time.DateOnly)},
	})
	return nil
}

func runLotUpdate(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}
	if err := checkDecimals(); err != nil {
		return err
	}

	var req client.UpdateLotRequest
	if cmd.Flags().Changed("quantity") {
		req.Quantity = &quantityFlag
	}
	if cmd.Flags().Changed("price") {
		req.UnitPrice = &unitPriceFlag
	}
	if cmd.Flags().Changed("date") {
		req.AcquiredDate = &dateFlag
	}

	res, err := c.UpdateLot(cmd.Context(), args[0], req)
	if err != nil {
		var apiErr *client.APIError
		if asAPIError(err, &apiErr) && apiErr.Code == "NO_CHANGES_DETECTED" {
			output.Info("Nothing changed")
			return nil
		}
		return err
	}

	if getFormat() == "json" {
		return output.JSON(res)
	}
	output.Success("Lot updated")
	output.Info(fmt.Sprintf("New cost basis %s", res.Lot.CostBasis.StringFixed(2)))
	return nil
}

func runLotDelete(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	if err := c.DeleteLot(cmd.Context(), args[0]); err != nil {
		return err
	}
	output.Success("Lot deleted")
	return nil
}

// checkDecimals rejects malformed numbers before a round trip.
func checkDecimals() error {
	for name, v := range map[string]string{"quantity": quantityFlag, "price": unitPriceFlag} {
		if v == "" {
			continue
		}
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("invalid %s %q", name, v)
		}
	}
	return nil
}

func printLots(lots []client.Lot, withPortfolio bool) {
	headers := []string{"Lot ID", "Symbol", "Qty", "Unit price", "Cost basis", "Acquired"}
	if withPortfolio {
		headers = append([]string{"Portfolio"}, headers...)
	}

	rows := make([][]string, len(lots))
	for i, l := range lots {
		row := []string{
			l.ID,
			l.AssetSymbol,
			l.Quantity.String(),
			l.UnitPrice.StringFixed(2),
			l.CostBasis.StringFixed(2),
			l.AcquiredDate.Format(time.DateOnly),
		}
		if withPortfolio {
			row = append([]string{l.PortfolioName}, row...)
		}
		rows[i] = row
	}
	output.Table(headers, rows)
}

func asAPIError(err error, target **client.APIError) bool {
	return errors.As(err, target)
}
