// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zfsync/zfsync/internal/adapters/execrunner"
	"github.com/zfsync/zfsync/internal/adapters/tuisvc"
	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/daemon"
	"github.com/zfsync/zfsync/internal/logging"
	"github.com/zfsync/zfsync/internal/ports/tuiport"
	"github.com/zfsync/zfsync/internal/replicate"
	"github.com/zfsync/zfsync/internal/retention"
	"github.com/zfsync/zfsync/internal/tui"
	"github.com/zfsync/zfsync/internal/zfs"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	Path() string
}

// ReplicateService runs a replication batch over the configured datasets.
type ReplicateService interface {
	Run(cfg *config.Config) replicate.Summary
}

// SnapshotService lists snapshots, locally or on the configured remote.
type SnapshotService interface {
	List(cfg *config.Config, dataset string) ([]zfs.Snapshot, error)
	ListRemote(cfg *config.Config, dataset string) ([]zfs.Snapshot, error)
}

// RestoreService pulls a snapshot back from the remote replica.
type RestoreService interface {
	Restore(cfg *config.Config, dataset, label, target string) error
}

// DaemonService runs the scheduled replication daemon.
type DaemonService interface {
	Run(ctx context.Context, cfg *config.Config) error
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out        io.Writer // Standard output
	Err        io.Writer // Standard error
	Version    string    // Application version
	ConfigPath string    // --config flag value

	// Injectable dependencies (nil means use defaults)
	ConfigSvc    ConfigService
	ReplicateSvc ReplicateService
	SnapshotSvc  SnapshotService
	RestoreSvc   RestoreService
	DaemonSvc    DaemonService
	TUISvc       tuiport.TUIService

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// buildClient assembles a zfs client over the real executor, carrying the
// configured ssh options.
func buildClient(cfg *config.Config) *zfs.Client {
	runner := execrunner.New(execrunner.WithSSHOptions(cfg.Remote.SSHOptions...))
	return zfs.NewClient(runner)
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct {
	path string
}

func (d *defaultConfigService) Load() (*config.Config, error) { return config.Load(d.path) }
func (d *defaultConfigService) Save(cfg *config.Config) error { return cfg.Save(d.path) }
func (d *defaultConfigService) Path() string {
	if d.path != "" {
		return d.path
	}
	return config.ConfigPath()
}

// defaultReplicateService runs the batch against the real executor.
type defaultReplicateService struct{}

func (d *defaultReplicateService) Run(cfg *config.Config) replicate.Summary {
	return replicate.NewRunner(buildClient(cfg), cfg).Run()
}

// defaultSnapshotService lists snapshots against the real executor.
type defaultSnapshotService struct{}

func (d *defaultSnapshotService) List(cfg *config.Config, dataset string) ([]zfs.Snapshot, error) {
	return buildClient(cfg).ListSnapshots(dataset)
}

func (d *defaultSnapshotService) ListRemote(cfg *config.Config, dataset string) ([]zfs.Snapshot, error) {
	return buildClient(cfg).ListRemoteSnapshots(cfg.Remote.Host, dataset)
}

// defaultRestoreService streams snapshots back against the real executor.
type defaultRestoreService struct{}

func (d *defaultRestoreService) Restore(cfg *config.Config, dataset, label, target string) error {
	return buildClient(cfg).Restore(cfg.Remote.Host, dataset, label, target)
}

// defaultDaemonService runs the scheduler against the real executor.
type defaultDaemonService struct {
	path string
}

func (d *defaultDaemonService) Run(ctx context.Context, cfg *config.Config) error {
	return daemon.New(buildClient(cfg), d.path).Run(ctx, cfg)
}

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{path: c.ConfigPath}
}

func (c *CLI) replicateSvc() ReplicateService {
	if c.ReplicateSvc != nil {
		return c.ReplicateSvc
	}
	return &defaultReplicateService{}
}

func (c *CLI) snapshotSvc() SnapshotService {
	if c.SnapshotSvc != nil {
		return c.SnapshotSvc
	}
	return &defaultSnapshotService{}
}

func (c *CLI) restoreSvc() RestoreService {
	if c.RestoreSvc != nil {
		return c.RestoreSvc
	}
	return &defaultRestoreService{}
}

func (c *CLI) daemonSvc() DaemonService {
	if c.DaemonSvc != nil {
		return c.DaemonSvc
	}
	return &defaultDaemonService{path: c.ConfigPath}
}

func (c *CLI) tuiSvc(cfg *config.Config) tuiport.TUIService {
	if c.TUISvc != nil {
		return c.TUISvc
	}
	return tuisvc.New(buildClient(cfg), c.ConfigPath)
}

// Run executes the CLI with the given arguments (without the program name).
func (c *CLI) Run(args []string) error {
	root := c.buildRootCmd()
	root.SetArgs(args)
	root.SetOut(c.Out)
	root.SetErr(c.Err)
	return root.Execute()
}

func (c *CLI) buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zfsync",
		Short: "ZFS snapshot replication with tiered retention",
		Long: `zfsync replicates ZFS datasets to a remote host over ssh.

Each run snapshots the configured datasets, sends the new snapshot to
the remote (incrementally when the replica already has a common base),
and prunes both sides down to the monthly/weekly/daily retention policy.`,
		Version:       c.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.launchTUI()
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("zfsync v%s\n", c.Version))
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "path to config file (default ~/.zfsync/config.yaml)")

	root.AddCommand(c.newRunCmd())
	root.AddCommand(c.newPlanCmd())
	root.AddCommand(c.newListCmd())
	root.AddCommand(c.newRestoreCmd())
	root.AddCommand(c.newStatusCmd())
	root.AddCommand(c.newInitCmd())
	root.AddCommand(c.newDaemonCmd())
	root.AddCommand(c.newUICmd())
	root.AddCommand(c.newVersionCmd())

	return root
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.Out, "zfsync v%s\n", c.Version)
		},
	}
}

func (c *CLI) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := c.configSvc()
			path := svc.Path()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := svc.Save(config.DefaultConfig()); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(c.Out, "Created config at %s\n", path)
			fmt.Fprintln(c.Out, "Edit it to set your remote host and dataset pairs.")
			return nil
		},
	}
}

func (c *CLI) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [dataset]",
		Short: "Snapshot, transfer, and prune all configured datasets",
		Long: `Run one replication batch: snapshot every configured dataset, send
the snapshots to the remote host, and prune both sides per the retention
policy. With a dataset argument, only that pair is replicated.

Exits nonzero if any dataset pair fails; the remaining pairs still run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configSvc().Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			if len(args) == 1 {
				pair, ok := findPair(cfg, args[0])
				if !ok {
					return fmt.Errorf("dataset %s is not configured", args[0])
				}
				cfg.Datasets = []config.DatasetPair{pair}
			}

			fmt.Fprintf(c.Out, "%s Replicating %d dataset(s) to %s\n\n",
				c.cyan("=>"), len(cfg.Datasets), cfg.Remote.Host)

			summary := c.replicateSvc().Run(cfg)

			replicated := 0
			failed := 0
			for _, r := range summary.Results {
				if r.Failed() {
					fmt.Fprintf(c.Out, "  %s %s: %s: %v\n", c.red("x"), r.Pair.Source, r.FailedStep, r.Err)
					failed++
					continue
				}

				mode := "full"
				if !r.Full {
					mode = "incremental from " + r.BaseLabel
				}
				pruned := ""
				if len(r.PrunedLocal) > 0 || len(r.PrunedRemote) > 0 {
					pruned = fmt.Sprintf("  pruned %d local, %d remote", len(r.PrunedLocal), len(r.PrunedRemote))
				}
				fmt.Fprintf(c.Out, "  %s %s %s %s%s\n",
					c.green("*"), r.Pair.Source, c.yellow(r.Label), c.gray("("+mode+")"), c.gray(pruned))
				replicated++
			}

			fmt.Fprintln(c.Out)
			fmt.Fprintf(c.Out, "Done: %s replicated", c.green(fmt.Sprintf("%d", replicated)))
			if failed > 0 {
				fmt.Fprintf(c.Out, ", %s failed", c.red(fmt.Sprintf("%d", failed)))
			}
			fmt.Fprintln(c.Out)

			if failed > 0 {
				return fmt.Errorf("%d of %d datasets failed", failed, len(summary.Results))
			}
			return nil
		},
	}
}

func (c *CLI) newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [dataset]",
		Short: "Show what the retention policy would keep and prune",
		Long: `Classify existing snapshots under the configured retention policy
without destroying anything. With a dataset argument, only that pair
is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configSvc().Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			pairs := cfg.Datasets
			if len(args) == 1 {
				pair, ok := findPair(cfg, args[0])
				if !ok {
					return fmt.Errorf("dataset %s is not configured", args[0])
				}
				pairs = []config.DatasetPair{pair}
			}
			if len(pairs) == 0 {
				return fmt.Errorf("no datasets configured")
			}

			fmt.Fprintf(c.Out, "Retention: %d monthly / %d weekly / %d daily\n",
				cfg.Retention.Monthly, cfg.Retention.Weekly, cfg.Retention.Daily)

			for _, pair := range pairs {
				snaps, err := c.snapshotSvc().List(cfg, pair.Source)
				if err != nil {
					return fmt.Errorf("listing %s: %w", pair.Source, err)
				}

				fmt.Fprintf(c.Out, "\n%s (%d snapshots)\n", c.cyan(pair.Source), len(snaps))
				if len(snaps) == 0 {
					continue
				}

				plan, err := retention.Classify(snaps, cfg.Retention)
				if err != nil {
					return fmt.Errorf("classifying %s: %w", pair.Source, err)
				}

				pruned := make(map[string]bool, len(plan.Prune))
				for _, snap := range plan.Prune {
					pruned[snap.Label] = true
				}
				for _, snap := range snaps {
					if pruned[snap.Label] {
						fmt.Fprintf(c.Out, "  %s %s\n", c.red("prune"), snap.Label)
						continue
					}
					tiers := ""
					for i, tier := range plan.Tiers[snap.Label] {
						if i > 0 {
							tiers += "+"
						}
						tiers += tier
					}
					fmt.Fprintf(c.Out, "  %s  %s %s\n", c.green("keep"), snap.Label, c.gray(tiers))
				}
			}
			return nil
		},
	}
}

func (c *CLI) newListCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "list <dataset>",
		Short: "List snapshots of a dataset",
		Long: `List snapshots of a dataset. With --remote, list the replica on the
remote host instead; a configured source name resolves to its target
dataset, any other name is used as given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configSvc().Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			dataset := args[0]
			where := ""
			var snaps []zfs.Snapshot
			if remote {
				if pair, ok := findPair(cfg, dataset); ok {
					dataset = pair.Target
				}
				where = " on " + cfg.Remote.Host
				snaps, err = c.snapshotSvc().ListRemote(cfg, dataset)
			} else {
				snaps, err = c.snapshotSvc().List(cfg, dataset)
			}
			if err != nil {
				return fmt.Errorf("listing %s: %w", dataset, err)
			}

			if len(snaps) == 0 {
				fmt.Fprintf(c.Out, "No snapshots found for %s%s\n", dataset, where)
				return nil
			}

			fmt.Fprintf(c.Out, "Snapshots of %s%s:\n\n", c.cyan(dataset), where)
			fmt.Fprintf(c.Out, "  %-26s %s\n", "SNAPSHOT", "CREATED")
			fmt.Fprintf(c.Out, "  %-26s %s\n", "--------", "-------")
			for _, snap := range snaps {
				fmt.Fprintf(c.Out, "  %-26s %s\n", snap.Label, snap.Time.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list the replica's snapshots on the remote host")
	return cmd
}

func (c *CLI) newRestoreCmd() *cobra.Command {
	var target, label string
	cmd := &cobra.Command{
		Use:   "restore <dataset>",
		Short: "Pull a snapshot back from the remote replica",
		Long: `Stream a replicated snapshot from the remote host into a new local
dataset. The dataset argument is the configured source name; the stream
is read from its replica target. Without --label the newest remote
snapshot is restored.

The target dataset must not exist yet: restores never overwrite a live
dataset. Verify the restored data, then rename or destroy as needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configSvc().Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			pair, ok := findPair(cfg, args[0])
			if !ok {
				return fmt.Errorf("dataset %s is not configured", args[0])
			}

			if label == "" {
				snaps, err := c.snapshotSvc().ListRemote(cfg, pair.Target)
				if err != nil {
					return fmt.Errorf("listing %s: %w", pair.Target, err)
				}
				if len(snaps) == 0 {
					return fmt.Errorf("no snapshots of %s on %s", pair.Target, cfg.Remote.Host)
				}
				label = snaps[len(snaps)-1].Label
			} else if !zfs.IsSnapshotLabel(label) {
				return fmt.Errorf("invalid snapshot label %q", label)
			}

			name := pair.Target + "@" + label
			fmt.Fprintf(c.Out, "%s Restoring %s from %s\n", c.cyan("=>"), c.yellow(name), cfg.Remote.Host)
			if err := c.restoreSvc().Restore(cfg, pair.Target, label, target); err != nil {
				return fmt.Errorf("restoring %s: %w", name, err)
			}
			fmt.Fprintf(c.Out, "%s Restored into %s\n", c.green("*"), target)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "local dataset to receive the stream (must not exist)")
	cmd.Flags().StringVar(&label, "label", "", "snapshot label to restore (default: newest on the remote)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := c.configSvc()
			cfg, err := svc.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			fmt.Fprintln(c.Out, "zfsync status:")
			remote := cfg.Remote.Host
			if remote == "" {
				remote = c.gray("(not set)")
			}
			fmt.Fprintf(c.Out, "  Remote:    %s\n", remote)
			fmt.Fprintf(c.Out, "  Retention: %d monthly / %d weekly / %d daily\n",
				cfg.Retention.Monthly, cfg.Retention.Weekly, cfg.Retention.Daily)
			fmt.Fprintf(c.Out, "  Schedule:  %s\n", cfg.Daemon.Schedule)
			fmt.Fprintf(c.Out, "  Config:    %s\n", svc.Path())

			if len(cfg.Datasets) == 0 {
				fmt.Fprintf(c.Out, "  Datasets:  %s\n", c.gray("(none configured)"))
				return nil
			}
			fmt.Fprintln(c.Out, "  Datasets:")
			for _, pair := range cfg.Datasets {
				fmt.Fprintf(c.Out, "    %s %s %s\n", pair.Source, c.gray("->"), pair.Target)
			}
			return nil
		},
	}
}

func (c *CLI) newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled replication with a metrics endpoint",
		Long: `Run replication batches on the configured cron schedule until
interrupted. The config file is re-read before every batch, so edits
take effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configSvc().Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(c.Out, "%s Daemon running (schedule %q)\n", c.cyan("=>"), cfg.Daemon.Schedule)
			return c.daemonSvc().Run(ctx, cfg)
		},
	}
}

func (c *CLI) newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Launch the interactive TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.launchTUI()
		},
	}
}

func (c *CLI) launchTUI() error {
	cfg, err := c.configSvc().Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return tui.Run(c.tuiSvc(cfg))
}

func findPair(cfg *config.Config, source string) (config.DatasetPair, bool) {
	for _, pair := range cfg.Datasets {
		if pair.Source == source {
			return pair, true
		}
	}
	return config.DatasetPair{}, false
}
