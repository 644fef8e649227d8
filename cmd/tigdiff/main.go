// cmd/tigdiff/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tigdiff/client"
	"tigdiff/internal/config"
	"tigdiff/internal/logging"
	"tigdiff/internal/parcel"
	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
	shared "tigdiff/shared/types"
)

var (
	logger = logging.Nop()
	cfg    *config.Config

	configPath string
	repoPath   string
	serverURL  string
	verbose    bool
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "tigdiff",
	Short: "tigdiff finds renamed and copied files between two revisions",
	Long: `tigdiff compares two trees of a git repository and pairs deleted and
added files into renames, and added files with existing ones into copies,
the way git does with -M and -C.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewConsole(verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("repo") {
			cfg.Repository.Path = repoPath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .tigdiff.yaml)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "Repository to inspect")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Ask a tigdiff server instead of reading the repository")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	var detectCmd = &cobra.Command{
		Use:   "detect [old] <new>",
		Short: "Show added, deleted, renamed and copied files between two revisions",
		Long: `Compares the trees of two revisions. With a single revision it is compared
to its first parent. An empty old revision ("") stands for the empty tree.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDetect,
	}
	detectCmd.Flags().Float32P("find-renames", "M", 0, "Similarity needed for a rename, 1 for identical content only")
	detectCmd.Flags().BoolP("find-copies", "C", false, "Look for copies of modified files")
	detectCmd.Flags().Bool("find-copies-harder", false, "Look for copies of every file in the old tree")
	detectCmd.Flags().Float32("copy-percentage", 0, "Similarity needed for a copy, defaults to the rename similarity")
	detectCmd.Flags().IntP("limit", "l", 0, "Skip similarity checks above this many candidate pairs, 0 for no limit")
	detectCmd.Flags().Bool("skip-vendored", false, "Ignore vendored dependency paths")
	detectCmd.Flags().StringSlice("skip-prefix", nil, "Ignore paths with this prefix")
	detectCmd.Flags().Bool("save", false, "Store the report")

	var reportsCmd = &cobra.Command{
		Use:   "reports",
		Short: "Work with stored reports",
	}

	var listReportsCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reports []*report.Report
			err := withReports(cmd.Context(), func(b reportsBackend) (err error) {
				reports, err = b.list()
				return err
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(reports)
			}
			printReportList(os.Stdout, reports)
			return nil
		},
	}

	var showReportCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r *report.Report
			err := withReports(cmd.Context(), func(b reportsBackend) (err error) {
				r, err = b.get(args[0])
				return err
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(r)
			}
			printReport(os.Stdout, r)
			return nil
		},
	}

	var deleteReportCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withReports(cmd.Context(), func(b reportsBackend) error {
				return b.delete(args[0])
			})
			if err != nil {
				return err
			}
			fmt.Println("Deleted report", args[0])
			return nil
		},
	}

	reportsCmd.AddCommand(listReportsCmd, showReportCmd, deleteReportCmd)
	rootCmd.AddCommand(detectCmd, reportsCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	oldRev, newRev := args[0]+"~1", args[0]
	if len(args) == 2 {
		oldRev, newRev = args[0], args[1]
	}

	rw, err := rewritesFromFlags(cmd, &cfg.Rewrites)
	if err != nil {
		return err
	}
	save, _ := cmd.Flags().GetBool("save")

	var r *report.Report
	if serverURL != "" {
		resp, err := client.New(serverURL).Detect(cmd.Context(), shared.DetectRequest{
			Old:      oldRev,
			New:      newRev,
			Rewrites: &rw,
			Save:     save,
		})
		if err != nil {
			return err
		}
		r = resp.Report
	} else {
		p, err := parcel.Open(cfg, logger.Logger, parcel.Options{Persist: save})
		if err != nil {
			return err
		}
		defer p.Close()

		r, err = p.Detector.Detect(cmd.Context(), oldRev, newRev, rw)
		if err != nil {
			return err
		}
		if save {
			if err := p.Reports.Create(r); err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
		}
	}

	logger.Debug("detection finished",
		zap.String("old", oldRev),
		zap.String("new", newRev),
		zap.Int("similarity_checks", r.Outcome.SimilarityChecks))

	if asJSON {
		return printJSON(r)
	}
	printReport(os.Stdout, r)
	if save {
		fmt.Println("Saved report", r.ID)
	}
	return nil
}

// rewritesFromFlags layers the detect flags over the configured options
func rewritesFromFlags(cmd *cobra.Command, rc *config.RewritesConfig) (rewrites.Rewrites, error) {
	flags := cmd.Flags()
	if flags.Changed("find-renames") {
		rc.Percentage, _ = flags.GetFloat32("find-renames")
	}
	if flags.Changed("find-copies") {
		rc.Copies, _ = flags.GetBool("find-copies")
	}
	if flags.Changed("find-copies-harder") {
		rc.CopiesHarder, _ = flags.GetBool("find-copies-harder")
	}
	if flags.Changed("copy-percentage") {
		rc.CopyPercentage, _ = flags.GetFloat32("copy-percentage")
	} else if flags.Changed("find-renames") {
		rc.CopyPercentage = rc.Percentage
	}
	if flags.Changed("limit") {
		rc.Limit, _ = flags.GetInt("limit")
	}
	if flags.Changed("skip-vendored") {
		rc.SkipVendored, _ = flags.GetBool("skip-vendored")
	}
	if flags.Changed("skip-prefix") {
		rc.SkipPrefixes, _ = flags.GetStringSlice("skip-prefix")
	}
	return rc.Options()
}

// reportsBackend is either the local report store or a server
type reportsBackend struct {
	list   func() ([]*report.Report, error)
	get    func(id string) (*report.Report, error)
	delete func(id string) error
}

func withReports(ctx context.Context, fn func(reportsBackend) error) error {
	if serverURL != "" {
		c := client.New(serverURL)
		return fn(reportsBackend{
			list:   func() ([]*report.Report, error) { return c.ListReports(ctx) },
			get:    func(id string) (*report.Report, error) { return c.GetReport(ctx, id) },
			delete: func(id string) error { return c.DeleteReport(ctx, id) },
		})
	}

	p, err := parcel.Open(cfg, logger.Logger, parcel.Options{Persist: true})
	if err != nil {
		return err
	}
	defer p.Close()

	return fn(reportsBackend{
		list:   p.Reports.List,
		get:    p.Reports.Get,
		delete: p.Reports.Delete,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
