package main

import (
	"github.com/spf13/cobra"
)

// --- Global flags ---
var (
	flagHomeRoot string
	flagXDGRoot  string
	flagQuiet    bool

	rootCmd = &cobra.Command{
		Use:           "hometree",
		Short:         "Version-controlled management of a subset of your home directory",
		Long:          `hometree tracks a declared subset of dotfiles and home-directory files in a bare repository, deploys revisions back onto the live filesystem under strict safety guards, and keeps secrets out of history via encrypted sidecars.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a fresh hometree configuration and repository",
		RunE:  runInit,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the managed set's current index status",
		RunE:  runStatus,
	}

	trackCmd = &cobra.Command{
		Use:   "track <path>...",
		Short: "Add one or more paths to the managed set and stage them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrack,
	}

	untrackCmd = &cobra.Command{
		Use:   "untrack <path>...",
		Short: "Remove one or more paths from the managed set",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUntrack,
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Commit the current index as a new generation",
		RunE:  runSnapshot,
	}

	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show the generations log",
		RunE:  runLog,
	}

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Compute a deploy plan without applying it",
	}
	planDeployCmd = &cobra.Command{
		Use:   "deploy <rev>",
		Short: "Print the plan that deploying <rev> would execute",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlanDeploy,
	}

	deployCmd = &cobra.Command{
		Use:   "deploy <rev>",
		Short: "Deploy a revision onto the live home directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeploy,
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Roll back to a prior generation",
		RunE:  runRollback,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Compare the live filesystem to a target revision",
		RunE:  runVerify,
	}

	secretCmd = &cobra.Command{
		Use:   "secret",
		Short: "Manage declared secret rules",
	}
	secretAddCmd = &cobra.Command{
		Use:   "add <path>",
		Short: "Declare a plaintext path as a secret and encrypt it",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretAdd,
	}
	secretRefreshCmd = &cobra.Command{
		Use:   "refresh [path...]",
		Short: "Re-encrypt secret ciphertexts against current recipients",
		RunE:  runSecretRefresh,
	}
	secretStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report each secret rule's on-disk state",
		RunE:  runSecretStatus,
	}
	secretRekeyCmd = &cobra.Command{
		Use:   "rekey",
		Short: "Generate a new identity and rewrap every secret to it",
		RunE:  runSecretRekey,
	}

	daemonCmd = &cobra.Command{
		Use:   "daemon",
		Short: "Run or control the background watcher daemon",
	}
	daemonRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the watcher and IPC server in the foreground",
		RunE:  runDaemonRun,
	}
	daemonStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Query the running daemon's status",
		RunE:  runDaemonStatus,
	}
	daemonReloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Ask the running daemon to re-read its configuration",
		RunE:  runDaemonReload,
	}
	daemonPauseCmd = &cobra.Command{
		Use:   "pause",
		Short: "Inhibit the running daemon's staging for a duration",
		RunE:  runDaemonPause,
	}
	daemonResumeCmd = &cobra.Command{
		Use:   "resume",
		Short: "Clear an active pause on the running daemon",
		RunE:  runDaemonResume,
	}
	daemonFlushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Ask the running daemon to flush its debounce buffer now",
		RunE:  runDaemonFlush,
	}

	// start/stop/restart/install-systemd/uninstall-systemd are part of the
	// CLI surface contract but delegate to process- and service-manager
	// integration that is out of scope here; they report that plainly
	// rather than silently disappearing from the command tree.
	daemonStartCmd           = &cobra.Command{Use: "start", Short: "Start the daemon as a background process (service-manager integration, not implemented here)", RunE: runDaemonUnsupported}
	daemonStopCmd            = &cobra.Command{Use: "stop", Short: "Stop the background daemon (service-manager integration, not implemented here)", RunE: runDaemonUnsupported}
	daemonRestartCmd         = &cobra.Command{Use: "restart", Short: "Restart the background daemon (service-manager integration, not implemented here)", RunE: runDaemonUnsupported}
	daemonInstallSystemdCmd  = &cobra.Command{Use: "install-systemd", Short: "Install a systemd unit for the daemon (installer scripts, not implemented here)", RunE: runDaemonUnsupported}
	daemonUninstallSystemdCmd = &cobra.Command{Use: "uninstall-systemd", Short: "Remove the daemon's systemd unit (installer scripts, not implemented here)", RunE: runDaemonUnsupported}
)

// --- Per-command flags ---
var (
	flagTrackAllowOutside bool
	flagTrackForce        bool

	flagSnapshotMessage string
	flagSnapshotAuto    bool

	flagLogLimit int

	flagDeployNoSecrets bool
	flagDeployNoBackup  bool

	flagRollbackTo    string
	flagRollbackSteps int

	flagVerifyRev        string
	flagVerifyStrict     bool
	flagVerifySecrets    string
	flagVerifyJSON       bool
	flagVerifyShowPaths  bool

	flagSecretShowPaths bool

	flagDaemonPauseTTLMs  int
	flagDaemonPauseReason string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHomeRoot, "home-root", "", "override the resolved home directory root")
	rootCmd.PersistentFlags().StringVar(&flagXDGRoot, "xdg-root", "", "override the resolved XDG config/state/runtime root")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress informational logging")

	trackCmd.Flags().BoolVar(&flagTrackAllowOutside, "allow-outside", false, "allow tracking a path outside every managed root")
	trackCmd.Flags().BoolVar(&flagTrackForce, "force", false, "track even a path an ignore pattern would otherwise exclude")

	snapshotCmd.Flags().StringVarP(&flagSnapshotMessage, "message", "m", "", "commit message")
	snapshotCmd.Flags().BoolVar(&flagSnapshotAuto, "auto", false, "generate the message from snapshot.auto_message_template")

	logCmd.Flags().IntVar(&flagLogLimit, "limit", 0, "show at most N most recent generations (0 = all)")

	deployCmd.Flags().BoolVar(&flagDeployNoSecrets, "no-secrets", false, "do not write decrypted secret plaintext during this deploy")
	deployCmd.Flags().BoolVar(&flagDeployNoBackup, "no-backup", false, "skip taking a backup set before applying")

	rollbackCmd.Flags().StringVar(&flagRollbackTo, "to", "", "roll back to an explicit revision instead of counting steps")
	rollbackCmd.Flags().IntVar(&flagRollbackSteps, "steps", 1, "number of generations to roll back")

	verifyCmd.Flags().StringVar(&flagVerifyRev, "rev", "HEAD", "revision to verify against")
	verifyCmd.Flags().BoolVar(&flagVerifyStrict, "strict", false, "also flag unexpected live files and executable-bit drift")
	verifyCmd.Flags().StringVar(&flagVerifySecrets, "with-secrets", "skip", "secrets verification mode: skip|presence|decrypt")
	verifyCmd.Flags().BoolVar(&flagVerifyJSON, "json", false, "emit the report as JSON")
	verifyCmd.Flags().BoolVar(&flagVerifyShowPaths, "show-paths", false, "do not redact secret plaintext paths in the report")

	secretStatusCmd.Flags().BoolVar(&flagSecretShowPaths, "show-paths", false, "do not redact secret plaintext paths")

	daemonPauseCmd.Flags().IntVar(&flagDaemonPauseTTLMs, "ttl-ms", 300_000, "pause duration in milliseconds")
	daemonPauseCmd.Flags().StringVar(&flagDaemonPauseReason, "reason", "", "reason tag recorded alongside the pause")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(logCmd)

	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planDeployCmd)

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(verifyCmd)

	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretAddCmd)
	secretCmd.AddCommand(secretRefreshCmd)
	secretCmd.AddCommand(secretStatusCmd)
	secretCmd.AddCommand(secretRekeyCmd)

	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonReloadCmd)
	daemonCmd.AddCommand(daemonPauseCmd)
	daemonCmd.AddCommand(daemonResumeCmd)
	daemonCmd.AddCommand(daemonFlushCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonInstallSystemdCmd)
	daemonCmd.AddCommand(daemonUninstallSystemdCmd)
}
