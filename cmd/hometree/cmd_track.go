package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/manageset"
	"github.com/hometree/hometree/internal/pathutil"
)

func runTrack(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	var configChanged bool
	for _, raw := range args {
		rp, err := pathutil.New(raw)
		if err != nil {
			return errs.WithPath(errs.KindConfigInvalid, raw, err.Error())
		}

		result := a.Classifier.Classify(rp, flagTrackAllowOutside)
		switch result.Class {
		case manageset.InRoot, manageset.ExtraFile:
			// already managed; fall through to stage

		case manageset.SecretPlaintext, manageset.SecretCiphertext:
			return errs.WithPath(errs.KindPathIsSecret, rp.String(), "path is a declared secret, not trackable directly")

		case manageset.Ignored:
			if !flagTrackForce {
				return errs.WithPath(errs.KindPathIsDenylisted, rp.String(), "path is excluded by an ignore pattern; use --force to override")
			}
			a.Config.Manage.ExtraFiles = append(a.Config.Manage.ExtraFiles, rp.String())
			configChanged = true

		case manageset.OutsideAllowed:
			a.Config.Manage.ExtraFiles = append(a.Config.Manage.ExtraFiles, rp.String())
			configChanged = true

		case manageset.OutsideAndDisallowed:
			if !flagTrackForce {
				return errs.WithPath(errs.KindPathOutsideHome, rp.String(), "path is outside every managed root; pass --allow-outside or --force")
			}
			a.Config.Manage.ExtraFiles = append(a.Config.Manage.ExtraFiles, rp.String())
			configChanged = true
		}

		if configChanged {
			if err := a.rebuildClassifier(); err != nil {
				return err
			}
		}

		if err := a.Repo.Stage(ctx, rp.String()); err != nil {
			return errs.Wrap(errs.KindIndexWriteFailed, err)
		}
		fmt.Println("tracked", rp.String())
	}

	if configChanged {
		return a.saveConfig()
	}
	return nil
}

func runUntrack(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	var configChanged bool
	for _, raw := range args {
		rp, err := pathutil.New(raw)
		if err != nil {
			return errs.WithPath(errs.KindConfigInvalid, raw, err.Error())
		}

		removed := false
		kept := a.Config.Manage.ExtraFiles[:0]
		for _, f := range a.Config.Manage.ExtraFiles {
			if f == rp.String() {
				removed = true
				continue
			}
			kept = append(kept, f)
		}
		a.Config.Manage.ExtraFiles = kept

		if !removed {
			// Not an extra file: must be under a managed root. Add an
			// exact-match ignore pattern so only this path leaves the
			// managed set, not its whole root.
			a.Config.Ignore.Patterns = append(a.Config.Ignore.Patterns, rp.String())
		}
		configChanged = true

		if err := a.Repo.Unstage(ctx, rp.String(), true); err != nil {
			return errs.Wrap(errs.KindIndexWriteFailed, err)
		}
		fmt.Println("untracked", rp.String())
	}

	if err := a.rebuildClassifier(); err != nil {
		return err
	}
	if configChanged {
		return a.saveConfig()
	}
	return nil
}
