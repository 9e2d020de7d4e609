package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/ipc"
	"github.com/hometree/hometree/internal/lockfile"
	"github.com/hometree/hometree/internal/watcher"
)

// runDaemonRun starts the watcher and the control socket in the
// foreground, running until an interrupt or terminate signal arrives. A
// repository lock is held for the daemon's entire lifetime so no
// concurrent deploy or rollback races its staging.
func runDaemonRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(a.Roots.LockFile(a.Repo.GitDir), "daemon")
	if err != nil {
		return err
	}
	defer lock.Release()

	w, err := watcher.New(a.Roots.HomeRoot, a.Classifier, a.Config.Watch, a.Secrets, func(ctx context.Context, relPath string) error {
		return a.Repo.Stage(ctx, relPath)
	})
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	reload := func() (config.V, error) {
		cfg, err := config.Load(a.Roots.ConfigFile())
		if err != nil {
			return config.V{}, err
		}
		prev := a.Config
		a.Config = cfg
		if err := a.rebuildClassifier(); err != nil {
			a.Config = prev
			return config.V{}, err
		}
		if err := w.Reload(a.Classifier, cfg.Watch); err != nil {
			return config.V{}, err
		}
		return cfg, nil
	}

	server := ipc.NewServer(a.Roots.IPCSocket(), w, reload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- w.Start(ctx) }()
	go func() { errCh <- server.Start(ctx) }()

	<-ctx.Done()
	firstErr := <-errCh
	if secondErr := <-errCh; firstErr == nil {
		firstErr = secondErr
	}
	if firstErr != nil && firstErr != context.Canceled {
		return errs.Wrap(errs.KindIOError, firstErr)
	}
	return nil
}

func daemonClient() (*ipc.Client, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(a.Roots.IPCSocket()), nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	status, err := client.Status()
	if err != nil {
		return errs.Wrap(errs.KindIpcUnavailable, err)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	fmt.Println(string(data))
	return nil
}

func runDaemonReload(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	if err := client.ReloadConfig(); err != nil {
		return errs.Wrap(errs.KindIpcUnavailable, err)
	}
	fmt.Println("reloaded")
	return nil
}

func runDaemonPause(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	if err := client.Pause(time.Duration(flagDaemonPauseTTLMs)*time.Millisecond, flagDaemonPauseReason); err != nil {
		return errs.Wrap(errs.KindIpcUnavailable, err)
	}
	fmt.Println("paused")
	return nil
}

func runDaemonResume(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	if err := client.Resume(); err != nil {
		return errs.Wrap(errs.KindIpcUnavailable, err)
	}
	fmt.Println("resumed")
	return nil
}

func runDaemonFlush(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}
	if err := client.Flush(); err != nil {
		return errs.Wrap(errs.KindIpcUnavailable, err)
	}
	fmt.Println("flushed")
	return nil
}

// runDaemonUnsupported backs the start/stop/restart/install-systemd/
// uninstall-systemd subcommands, which are part of the CLI surface
// contract but delegate to process- and service-manager integration this
// repository does not implement.
func runDaemonUnsupported(cmd *cobra.Command, args []string) error {
	return fmt.Errorf("%q delegates to service-manager/installer integration, which is out of scope for this build; run 'hometree daemon run' directly or manage it with your own process supervisor", cmd.Name())
}
