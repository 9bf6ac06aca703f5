package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect recorded attendance",
}

var attendanceHistoryCmd = &cobra.Command{
	Use:   "history <identity-id>",
	Short: "List attendance events of an identity",
	Long: `List the attendance events of an identity in creation order.

Examples:
  face-attendance attendance history 3f1c... --from 2025-03-01 --to 2025-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceHistory,
}

var attendanceSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show enrolled and present counts for a day",
	RunE:  runAttendanceSummary,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceHistoryCmd)
	attendanceCmd.AddCommand(attendanceSummaryCmd)

	attendanceHistoryCmd.Flags().String("from", "", "First date (YYYY-MM-DD), inclusive")
	attendanceHistoryCmd.Flags().String("to", "", "Last date (YYYY-MM-DD), inclusive")
	attendanceHistoryCmd.Flags().Bool("json", false, "Output as JSON")

	attendanceSummaryCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	attendanceSummaryCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendanceHistory(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	from, err := getDateFlag(cmd, "from")
	if err != nil {
		return err
	}
	to, err := getDateFlag(cmd, "to")
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(&cfg.Log, os.Stderr)
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(cfg, b, logger)
	if err != nil {
		return err
	}

	identity, err := svc.Identity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get identity: %w", err)
	}
	events, err := svc.History(ctx, identity.ID, database.DateRange{From: from, To: to})
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	var list []database.AttendanceEvent
	for e, err := range events {
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		list = append(list, e)
	}

	if jsonOutput {
		type eventJSON struct {
			database.AttendanceEvent
			Date string `json:"date"`
		}
		out := make([]eventJSON, 0, len(list))
		for i := range list {
			out = append(out, eventJSON{AttendanceEvent: list[i], Date: list[i].DateString()})
		}
		return outputJSON(out)
	}

	fmt.Printf("%s (%s): %d event(s)\n", identity.Name, identity.RollNumber, len(list))
	for i := range list {
		e := &list[i]
		fmt.Printf("  %s  %-7s  %.4f  %s\n", e.DateString(), e.Status, e.Confidence, e.Method)
	}
	return nil
}

func runAttendanceSummary(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	date, err := getDateFlag(cmd, "date")
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(&cfg.Log, os.Stderr)
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(cfg, b, logger)
	if err != nil {
		return err
	}

	summary, err := svc.DailySummary(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	if jsonOutput {
		return outputJSON(map[string]any{
			"date":     summary.Date.Format(database.DateLayout),
			"enrolled": summary.Enrolled,
			"present":  summary.Present,
		})
	}
	fmt.Printf("%s: %d of %d present\n", summary.Date.Format(database.DateLayout), summary.Present, summary.Enrolled)
	return nil
}
