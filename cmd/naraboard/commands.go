package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/kalambet/naraboard/internal/api"
	"github.com/kalambet/naraboard/internal/config"
	"github.com/kalambet/naraboard/internal/retention"
	"github.com/kalambet/naraboard/internal/storage"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch postings from the open-data service into the local store",
	Long: `Fetch postings from the open-data service into the local store.

Pages are walked from 1 until an empty page or the page/item limits.

Examples:
  naraboard sync
  naraboard sync --pages 3 --size 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.cfg.RequireServiceKey(); err != nil {
			return err
		}

		d := a.syncDefaults()
		pages, _ := cmd.Flags().GetInt("pages")
		size, _ := cmd.Flags().GetInt("size")
		maxItems, _ := cmd.Flags().GetInt("max-items")
		if pages > 0 {
			d.Pages = pages
		}
		if size > 0 {
			d.Size = size
		}
		if maxItems > 0 {
			d.MaxItems = maxItems
		}

		ctx, stop := signalContext()
		defer stop()

		printStep("Syncing up to %d pages of %d postings", d.Pages, d.Size)
		res, err := a.ingest.SyncAll(ctx, d.Pages, d.MaxItems, d.Size)
		if err != nil {
			return err
		}
		printSuccess("Stored %d postings from %d pages (%d new, %d updated)", res.Stored, res.Pages, res.Created, res.Updated)
		if res.Dropped > 0 {
			printWarning("%d postings without an id were dropped", res.Dropped)
		}
		if res.Partial > 0 {
			printWarning("%d postings stored with partial enrichment", res.Partial)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("pages", 0, "maximum pages to fetch (default from config)")
	syncCmd.Flags().Int("size", 0, "postings per page (default from config)")
	syncCmd.Flags().Int("max-items", 0, "maximum postings to fetch (default from config)")
}

// --- cleanup ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete postings older than the retention window that are no longer open",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := a.cleanup.Run(ctx, dryRun)
		if err != nil {
			return err
		}

		printStatuses(
			statusRow{"Today", res.Today},
			statusRow{"Scanned", res.Scanned},
			statusRow{"Kept (fresh)", res.PreservedFresh},
			statusRow{"Kept (open)", res.PreservedOpen},
			statusRow{"Stale", res.Stale},
		)
		if dryRun {
			printSuccess("Dry run: %d postings would be deleted", res.Stale)
			return nil
		}
		if res.Failed > 0 {
			printWarning("%d deletes failed", res.Failed)
		}
		printSuccess("Deleted %d postings", res.Deleted)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "report what would be deleted without deleting")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the retention status of stored postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		rep, err := a.cleanup.Status(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(rep)
		}
		printReport(rep)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("json", false, "print the report as JSON")
}

func printReport(rep retention.Report) {
	printStatus("Today", "%s", rep.Today)
	printStatus("Total", "%d", rep.Total)
	printStatus("Fresh", "%d", rep.Fresh)
	printStatus("Open", "%d", rep.Open)
	printStatus("Stale", "%s", colorize(colorYellow, fmt.Sprint(rep.Stale)))
	printStatus("Expired", "%d", rep.Expired)
	if rep.UnparsedDates > 0 {
		printStatus("Unparsed dates", "%d", rep.UnparsedDates)
	}

	if len(rep.ExpiringSoon) > 0 {
		fmt.Fprintln(out, colorize(colorBold, "\nExpiring soon"))
		for _, f := range rep.ExpiringSoon {
			fmt.Fprintf(out, "  %s  D-%d  %s\n", colorize(colorCyan, f.ID), f.DaysLeft, truncate(f.Title, 60))
		}
	}
	if len(rep.Departments) > 0 {
		fmt.Fprintln(out, colorize(colorBold, "\nTop departments"))
		for i, d := range rep.Departments {
			if i == 10 {
				break
			}
			fmt.Fprintf(out, "  %4d  %s\n", d.Count, d.Department)
		}
	}
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard counts for stored postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store.StatsAsOf(retention.Today(time.Now()))
		if err != nil {
			return err
		}
		printStatuses(
			statusRow{"Total postings", st.TotalJobs},
			statusRow{"Closing within 3 days", st.UrgentJobs},
			statusRow{"Registered in last 7 days", st.RecentJobs},
			statusRow{"Departments", st.TotalDepartments},
		)
		return nil
	},
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List postings from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), jobsPath(search, page, limit))
		if err != nil {
			return err
		}

		var list api.JobList
		if _, err := decodeEnvelope(resp, &list); err != nil {
			return err
		}
		printJobList(list)
		return nil
	},
}

func init() {
	jobsCmd.Flags().String("search", "", "match title or department")
	jobsCmd.Flags().Int("page", 1, "page number")
	jobsCmd.Flags().Int("limit", 20, "postings per page")
}

func printJobList(list api.JobList) {
	if len(list.Jobs) == 0 {
		fmt.Fprintln(out, "No postings found.")
		return
	}
	for _, j := range list.Jobs {
		fmt.Fprintf(out, "%s  %s ~ %s  %s  %s\n",
			colorize(colorCyan, j.ID),
			j.RegisteredOn,
			j.ExpiresOn,
			colorize(colorBold, truncate(j.Title, 50)),
			j.Department,
		)
	}
	fmt.Fprintf(out, "\npage %d, %d of %d postings\n", list.Page, len(list.Jobs), list.Total)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		return showStatus(cfg)
	},
}

func showStatus(cfg config.Config) error {
	base := serverURL(cfg)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", base)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Upstream.ServiceKey == "" {
		printStatus("Service key", "%s", colorize(colorYellow, "missing"))
	} else {
		printStatus("Service key", "set")
	}
	printStatus("Database", "%s", cfg.DBPath())

	if _, err := os.Stat(cfg.DBPath()); err != nil {
		return nil
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Store", "unavailable (%v)", err)
		return nil
	}
	defer store.Close()

	if n, err := store.CountPostings(); err == nil {
		printStatus("Postings", "%d", n)
	}
	for _, kind := range []string{"sync", "cleanup"} {
		runs, err := store.RecentRuns(kind, 1)
		if err != nil || len(runs) == 0 {
			printStatus("Last "+kind, "never")
			continue
		}
		r := runs[0]
		outcome := "ok"
		if r.Error != "" {
			outcome = colorize(colorRed, "failed: "+truncate(r.Error, 80))
		}
		printStatus("Last "+kind, "%s (%s)", r.FinishedAt.Local().Format(time.DateTime), outcome)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(out, k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}
