package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cognicore/termintel/internal/jsonl"
	"github.com/cognicore/termintel/pkg/termintel"
	"github.com/cognicore/termintel/pkg/termintel/config"
	"github.com/cognicore/termintel/pkg/termintel/review"
	"github.com/cognicore/termintel/pkg/termintel/store"
	"github.com/cognicore/termintel/pkg/termintel/store/sqlite"
)

var version = "dev"

const defaultConfigFile = "termintel.yaml"

var (
	verbose    bool
	configPath string
	dbPath     string
	accountID  string
	campaigns  []int64
	days       int

	cfg    config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "termintel",
	Short:   "Search-term intelligence for sponsored ads",
	Long:    "termintel mines search-term reports for negative keywords, match-type migrations and cross-campaign conflicts, and applies the accepted ones.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if days > 0 {
			cfg.LookbackDays = days
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./"+defaultConfigFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "termintel.db", "Path to SQLite database")
	rootCmd.PersistentFlags().StringVarP(&accountID, "account", "a", "default", "Advertiser account id")
	rootCmd.PersistentFlags().Int64SliceVar(&campaigns, "campaign", nil, "Restrict to campaign ids (repeatable)")
	rootCmd.PersistentFlags().IntVar(&days, "days", 0, "Lookback window in days (overrides config)")

	rootCmd.AddCommand(versionCmd, initCmd, importCmd, negativesCmd, migrationsCmd, conflictsCmd,
		analyzeCmd, reviewCmd, acceptAllCmd, historyCmd)
}

// loadConfig reads the explicit path, or the local default file when it
// exists, or falls back to built-in defaults.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.Load(defaultConfigFile)
	}
	return config.Default(), nil
}

func openEngine(ctx context.Context) (*termintel.Engine, store.Store, error) {
	st, err := sqlite.OpenSQLite(ctx, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	eng, err := termintel.New(termintel.Options{
		Rows:        st,
		Keywords:    st,
		Negatives:   st,
		Writer:      st,
		DecisionLog: st,
		Config:      &cfg,
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return eng, st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("termintel", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := configPath
		if target == "" {
			target = defaultConfigFile
		}
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}
		if err := os.WriteFile(target, config.DefaultYAML(), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Created config: %s\n", target)
		return nil
	},
}

var (
	rowsFile     string
	keywordsFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load search-term rows and keywords from JSONL into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rowsFile == "" && keywordsFile == "" {
			return errors.New("nothing to import: pass --rows and/or --keywords")
		}
		ctx := cmd.Context()
		st, err := sqlite.OpenSQLite(ctx, dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		if rowsFile != "" {
			recs, err := jsonl.Load[jsonl.RowRecord](rowsFile, logger)
			if err != nil {
				return err
			}
			rows := jsonl.Rows(recs, logger)
			if err := st.InsertRows(ctx, accountID, rows); err != nil {
				return fmt.Errorf("insert rows: %w", err)
			}
			logger.Info("imported rows", "account", accountID, "rows", len(rows), "skipped", len(recs)-len(rows))
		}

		if keywordsFile != "" {
			kws, err := jsonl.Load[store.Keyword](keywordsFile, logger)
			if err != nil {
				return err
			}
			added := 0
			for _, kw := range kws {
				if kw.AccountID == "" {
					kw.AccountID = accountID
				}
				if err := st.AddKeyword(ctx, kw); err != nil {
					logger.Warn("skipping keyword", "text", kw.Text, "err", err)
					continue
				}
				added++
			}
			logger.Info("imported keywords", "account", accountID, "keywords", added)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&rowsFile, "rows", "", "JSONL file of search-term rows")
	importCmd.Flags().StringVar(&keywordsFile, "keywords", "", "JSONL file of positive keywords")
}

var negativesCmd = &cobra.Command{
	Use:   "negatives",
	Short: "Suggest negative keyword roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		out, err := eng.Negatives(cmd.Context(), eng.Scope(accountID, campaigns...))
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, out)
	},
}

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "Suggest match-type migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		out, err := eng.Migrations(cmd.Context(), eng.Scope(accountID, campaigns...))
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, out)
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve cross-campaign traffic conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		out, err := eng.Conflicts(cmd.Context(), eng.Scope(accountID, campaigns...))
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, out)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run all analyzers and print one report",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		rep, err := eng.Analyze(cmd.Context(), eng.Scope(accountID, campaigns...))
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, rep)
	},
}

var decisionsFile string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Apply accept/reject decisions from a JSONL file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if decisionsFile == "" {
			return errors.New("--decisions is required")
		}
		decisions, err := jsonl.Load[review.Decision](decisionsFile, logger)
		if err != nil {
			return err
		}
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		res, err := eng.Review(cmd.Context(), accountID, decisions)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&decisionsFile, "decisions", "", "JSONL file of review decisions")
}

var acceptAllCmd = &cobra.Command{
	Use:   "accept-all",
	Short: "Regenerate every suggestion and accept all of them",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		res, err := eng.AcceptAll(cmd.Context(), eng.Scope(accountID, campaigns...))
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, res)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the review audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := sqlite.OpenSQLite(cmd.Context(), dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()
		recs, err := st.Decisions(cmd.Context(), accountID)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, recs)
	},
}
