// Package main provides the Kvasir CLI entry point.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/kvasir/pkg/compile"
	"github.com/orneryd/kvasir/pkg/config"
	"github.com/orneryd/kvasir/pkg/plan"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kvasir",
		Short: "Kvasir - Cypher query compilation core",
		Long: `Kvasir compiles Cypher query text into cost-annotated logical plans.

It is the compilation front half of a graph database: parsing, scope
resolution, privilege computation and plan generation, with two-level
fingerprint-keyed caching for repeated queries.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Kvasir v%s (%s)\n", version, commit)
		},
	})

	var (
		configPath  string
		costPlanner bool
		ruleBased   bool
		params      []string
		vertices    int64
		verbose     bool
	)
	explainCmd := &cobra.Command{
		Use:   "explain [query]",
		Short: "Compile a query and print its logical plan",
		Long: `Compile a query with a fresh cache set and print the operator tree,
the estimated cost and the privileges required to execute it.

The query is read from the argument, or from stdin when absent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.FindConfigFile()
			}
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return err
			}
			if costPlanner {
				cfg.Planner.CostPlanner = true
			}
			if ruleBased {
				cfg.Planner.CostPlanner = false
			}
			setupLogging(cfg, verbose)

			query, err := readQuery(args)
			if err != nil {
				return err
			}
			bindings, err := parseParams(params)
			if err != nil {
				return err
			}

			compiler := compile.NewCompiler(
				compile.NewQueryCache(cfg.Cache.QueryCacheSize),
				compile.NewPlanCache(cfg.Cache.PlanCacheSize, cfg.Cache.PlanTTL()),
				compile.NewSharedParser(),
				compile.Options{
					CostPlanner: cfg.Planner.CostPlanner,
					Stats:       plan.FixedStats{Vertices: vertices},
				},
			)
			compiled, err := compiler.Compile(query, bindings, nil)
			if err != nil {
				return err
			}

			fmt.Print(plan.Format(compiled.Plan.Root()))
			fmt.Printf("\nestimated cost: %.2f\n", compiled.Plan.Cost())
			fmt.Printf("fingerprint: %016x\n", compiled.Fingerprint)
			if len(compiled.RequiredPrivileges) > 0 {
				names := make([]string, len(compiled.RequiredPrivileges))
				for i, p := range compiled.RequiredPrivileges {
					names[i] = p.String()
				}
				fmt.Printf("required privileges: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
	explainCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: auto-detect)")
	explainCmd.Flags().BoolVar(&costPlanner, "cost-planner", false, "force cost-based planning")
	explainCmd.Flags().BoolVar(&ruleBased, "rule-based", false, "force rule-based planning")
	explainCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter binding name=value (repeatable)")
	explainCmd.Flags().Int64Var(&vertices, "vertices", 1000, "assumed vertex count for cost estimation")
	explainCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(explainCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config, verbose bool) {
	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

func readQuery(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read query from stdin: %w", err)
	}
	return string(data), nil
}

func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, want name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}
