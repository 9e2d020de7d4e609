package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/layout"
	"github.com/hometree/hometree/internal/store"
)

func runInit(cmd *cobra.Command, args []string) error {
	roots := layout.Resolve(layout.Overrides{HomeRoot: flagHomeRoot, XDGRoot: flagXDGRoot}, os.Getenv)

	if _, err := os.Stat(roots.ConfigFile()); err == nil {
		return errs.WithPath(errs.KindConfigInvalid, roots.ConfigFile(), "configuration already exists")
	}
	if err := config.WriteDefault(roots.ConfigFile()); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	if err := os.MkdirAll(roots.ConfigRoot, 0o755); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	if err := os.WriteFile(roots.ExcludesFile(), []byte{}, 0o644); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	repo := store.Open(roots.DefaultGitDir(), roots.HomeRoot)
	if err := repo.Init(backgroundCtx(), roots.ExcludesFile()); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	fmt.Printf("initialized hometree\n  config: %s\n  repository: %s\n  state: %s\n", roots.ConfigFile(), roots.DefaultGitDir(), roots.StateDir)
	return nil
}
