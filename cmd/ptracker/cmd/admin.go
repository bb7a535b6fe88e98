package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rohianon/ptracker/cmd/ptracker/internal/client"
	"github.com/Rohianon/ptracker/cmd/ptracker/internal/output"
	"github.com/Rohianon/ptracker/pkg/events"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair portfolio membership",
	Long: `Scan portfolios for membership damage left by partially failed
operations and repair it: dangling lot references, lots and assets missing
from their portfolio, and lots whose portfolio no longer exists.`,
	RunE: runReconcile,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Ledger event commands",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail [TOPIC...]",
	Short: "Print ledger events as they are published",
	Long: `Follow ledger event topics on Kafka and print each event.
With no topics every ledger topic is followed.`,
	RunE: runEventsTail,
}

var (
	allUsersFlag bool
	dryRunFlag   bool
	brokersFlag  []string
	groupFlag    string
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	reconcileCmd.Flags().BoolVar(&allUsersFlag, "all", false, "scan every user, not only yourself (admins only)")
	reconcileCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "report damage without repairing it")

	eventsTailCmd.Flags().StringSliceVarP(&brokersFlag, "brokers", "b", nil, "Kafka brokers (default from kafka_brokers config)")
	eventsTailCmd.Flags().StringVarP(&groupFlag, "group", "g", "", "consumer group; empty reads without committing offsets")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	c, err := requireAuth()
	if err != nil {
		return err
	}

	report, err := c.Reconcile(cmd.Context(), allUsersFlag, dryRunFlag)
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(report)
	}
	printReconcileReport(report)
	return nil
}

func printReconcileReport(r *client.ReconcileReport) {
	title := "Reconcile"
	if r.DryRun {
		title += " (dry run)"
	}
	output.Header(title)
	fmt.Println()

	output.KeyValue([][]string{
		{"Users scanned", strconv.Itoa(r.UsersScanned)},
		{"Portfolios scanned", strconv.Itoa(r.PortfoliosScanned)},
		{"Lots scanned", strconv.Itoa(r.LotsScanned)},
		{"Took", r.Duration},
	})
	fmt.Println()

	var rows [][]string
	for _, ref := range r.DanglingLotRefs {
		rows = append(rows, []string{"dangling lot ref", ref.PortfolioID, ref.ID})
	}
	for _, ref := range r.MissingLotRefs {
		rows = append(rows, []string{"missing lot ref", ref.PortfolioID, ref.ID})
	}
	for _, ref := range r.MissingAssetRefs {
		rows = append(rows, []string{"missing asset ref", ref.PortfolioID, ref.ID})
	}
	for _, id := range r.OrphanLots {
		rows = append(rows, []string{"orphan lot", "", id})
	}

	if len(rows) == 0 {
		output.Success("No membership damage found")
	} else {
		output.Table([]string{"Repair", "Portfolio", "ID"}, rows)
		if r.DryRun {
			output.Info("Run without --dry-run to apply these repairs")
		}
	}

	for _, e := range r.Errors {
		output.Error(e)
	}
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	brokers := brokersFlag
	if len(brokers) == 0 {
		brokers = viper.GetStringSlice("kafka_brokers")
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}

	topics := args
	if len(topics) == 0 {
		topics = events.AllTopics
	}
	for _, t := range topics {
		if !slices.Contains(events.AllTopics, t) {
			return fmt.Errorf("unknown topic %q", t)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := events.NewKafkaSubscriber(brokers, groupFlag)
	defer sub.Close()

	asJSON := getFormat() == "json"
	for _, topic := range topics {
		err := sub.Subscribe(ctx, topic, func(_ context.Context, e *events.Event) error {
			return printEvent(topic, e, asJSON)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	if !asJSON {
		output.Info(fmt.Sprintf("Following %d topics on %s, Ctrl-C to stop", len(topics), strings.Join(brokers, ",")))
	}
	<-ctx.Done()
	return nil
}

func printEvent(topic string, e *events.Event, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(struct {
			Topic string `json:"topic"`
			*events.Event
		}{topic, e})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %s  %s\n",
		output.MutedStyle.Render(e.OccurredAt.Local().Format(time.TimeOnly)),
		output.HeaderStyle.Render(e.EventType),
		output.Short(e.UserID),
		string(payload),
	)
	return nil
}
