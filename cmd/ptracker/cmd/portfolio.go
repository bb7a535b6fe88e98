package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/client"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
)

var portfolioCmd = &cobra.Command{
	Use:     "portfolio",
	Aliases: []string{"portfolios", "pf"},
	Short:   "Portfolio commands",
	Long:    "Create, inspect, rename and delete portfolios and manage their assets.",
}

var portfolioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your portfolios",
	RunE:  runPortfolioList,
}

var portfolioShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a portfolio's assets and lots",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioShow,
}

var portfolioCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioCreate,
}

var portfolioRenameCmd = &cobra.Command{
	Use:   "rename ID",
	Short: "Change a portfolio's name or description",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioRename,
}

var portfolioDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a portfolio and every lot in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioDelete,
}

var portfolioValueCmd = &cobra.Command{
	Use:   "value ID",
	Short: "Value one portfolio against live quotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioValue,
}

var assetAddCmd = &cobra.Command{
	Use:   "add-asset ID SYMBOL",
	Short: "Add an asset to a portfolio",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssetAdd,
}

var assetRemoveCmd = &cobra.Command{
	Use:   "remove-asset ID ASSET_ID",
	Short: "Remove an asset from a portfolio",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssetRemove,
}

var (
	descriptionFlag string
	symbolsFlag     []string
	nameFlag        string
	cascadeFlag     bool
	yesFlag         bool
)

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioListCmd)
	portfolioCmd.AddCommand(portfolioShowCmd)
	portfolioCmd.AddCommand(portfolioCreateCmd)
	portfolioCmd.AddCommand(portfolioRenameCmd)
	portfolioCmd.AddCommand(portfolioDeleteCmd)
	portfolioCmd.AddCommand(portfolioValueCmd)
	portfolioCmd.AddCommand(assetAddCmd)
	portfolioCmd.AddCommand(assetRemoveCmd)

	portfolioCreateCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "description")
	portfolioCreateCmd.Flags().StringSliceVarP(&symbolsFlag, "symbols", "s", nil, "initial symbols, comma separated")

	portfolioRenameCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "new name")
	portfolioRenameCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "new description")

	portfolioDeleteCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip confirmation")

	assetRemoveCmd.Flags().BoolVar(&cascadeFlag, "cascade", false, "delete the asset's lots first")
}

func runPortfolioList(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	portfolios, err := c.ListPortfolios(cmd.Context())
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(portfolios)
	}

	if len(portfolios) == 0 {
		output.Info("No portfolios yet. Run 'ptracker portfolio create NAME' to add one.")
		return nil
	}

	rows := make([][]string, len(portfolios))
	for i, p := range portfolios {
		rows[i] = []string{
			p.ID,
			p.Name,
			strconv.Itoa(p.AssetCount),
			strconv.Itoa(p.LotCount),
			p.CreatedAt.Format("2006-01-02"),
		}
	}
	output.Header("Portfolios")
	fmt.Println()
	output.Table([]string{"ID", "Name", "Assets", "Lots", "Created"}, rows)
	return nil
}

func runPortfolioShow(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	p, err := c.GetPortfolio(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(p)
	}

	output.Header(p.Name)
	if p.Description != "" {
		output.Info(p.Description)
	}
	fmt.Println()

	if len(p.Assets) == 0 {
		output.Info("No assets")
		return nil
	}
	assetRows := make([][]string, len(p.Assets))
	for i, a := range p.Assets {
		assetRows[i] = []string{a.ID, a.Symbol, a.LongName, a.Exchange}
	}
	output.Table([]string{"Asset ID", "Symbol", "Name", "Exchange"}, assetRows)

	if len(p.Lots) > 0 {
		fmt.Println()
		printLots(p.Lots, false)
	}
	return nil
}

func runPortfolioCreate(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	p, err := c.CreatePortfolio(cmd.Context(), client.CreatePortfolioRequest{
		Name:        args[0],
		Description: descriptionFlag,
		Symbols:     symbolsFlag,
	})
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(p)
	}

	output.Success("Portfolio created")
	fmt.Println()
	symbols := make([]string, len(p.Assets))
	for i, a := range p.Assets {
		symbols[i] = a.Symbol
	}
	output.KeyValue([][]string{
		{"ID", p.ID},
		{"Name", p.Name},
		{"Assets", strings.Join(symbols, ", ")},
	})
	if len(symbols) < len(symbolsFlag) {
		output.Warning("Some symbols could not be resolved and were skipped")
	}
	return nil
}

func runPortfolioRename(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	var req client.UpdatePortfolioRequest
	if cmd.Flags().Changed("name") {
		req.Name = &nameFlag
	}
	if cmd.Flags().Changed("description") {
		req.Description = &descriptionFlag
	}
	if req.Name == nil && req.Description == nil {
		return fmt.Errorf("pass --name and/or --description")
	}

	msg, err := c.UpdatePortfolio(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}
	output.Success(msg)
	return nil
}

func runPortfolioDelete(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	if !yesFlag {
		answer := prompt(fmt.Sprintf("Delete portfolio %s and all its lots? [y/N]", args[0]))
		if !strings.EqualFold(answer, "y") {
			output.Info("Cancelled")
			return nil
		}
	}

	res, err := c.DeletePortfolio(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(res)
	}
	output.Success(fmt.Sprintf("Portfolio deleted, %d lots removed", len(res.RemovedLotIDs)))
	if len(res.FailedLotIDs) > 0 {
		output.Warning(fmt.Sprintf("%d lots could not be removed: %s", len(res.FailedLotIDs), strings.Join(res.FailedLotIDs, ", ")))
		output.Info("Run 'ptracker reconcile' to clean them up")
	}
	return nil
}

func runPortfolioValue(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	v, err := c.Valuation(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(v)
	}

	printPortfolioValuation(*v)
	return nil
}

func runAssetAdd(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	res, err := c.AddAsset(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(res)
	}
	if res.AlreadyPresent {
		output.Info(res.Asset.Symbol + " is already in this portfolio")
		return nil
	}
	output.Success(fmt.Sprintf("Added %s (%s)", res.Asset.Symbol, res.Asset.ID))
	return nil
}

func runAssetRemove(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	msg, err := c.RemoveAsset(cmd.Context(), args[0], args[1], cascadeFlag)
	if err != nil {
		var apiErr *client.APIError
		if asAPIError(err, &apiErr) && apiErr.Code == "LOTS_STILL_PRESENT" {
			output.Info("Pass --cascade to delete the asset's lots as well")
		}
		return err
	}
	output.Success(msg)
	return nil
}

func printPortfolioValuation(v client.PortfolioValuation) {
	currency := viper.GetString("currency")

	output.Header(v.Name)
	fmt.Println()

	rows := make([][]string, 0, len(v.Assets))
	for _, a := range v.Assets {
		price := a.Price.StringFixed(2)
		if !a.Priced {
			price = output.WarningStyle.Render("n/a")
		}
		rows = append(rows, []string{
			a.Symbol,
			a.Quantity.String(),
			price,
			a.MarketValue.StringFixed(2),
			output.Signed(a.DaysChange),
			a.BookValue.StringFixed(2),
			output.Signed(a.TotalReturn),
		})
	}
	if len(rows) > 0 {
		output.Table([]string{"Symbol", "Qty", "Price", "Value", "Day", "Cost", "Return"}, rows)
		fmt.Println()
	}

	output.KeyValue([][]string{
		{"Market value", output.Money(v.MarketValue, currency)},
		{"Day's change", output.Signed(v.DaysChange)},
		{"Book value", output.Money(v.BookValue, currency)},
		{"Total return", output.Signed(v.TotalReturn)},
	})
}
