package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/layout"
	"github.com/hometree/hometree/internal/manageset"
	"github.com/hometree/hometree/internal/secrets"
	"github.com/hometree/hometree/internal/store"
	"github.com/hometree/hometree/internal/telemetry"
)

// app bundles everything a command needs once configuration has been
// loaded and the classifier built. One is constructed per invocation;
// nothing here is global mutable state except inside the daemon's
// watcher, which owns its own reload path.
type app struct {
	Roots      layout.Roots
	Config     config.V
	Classifier *manageset.Classifier
	Repo       *store.Repo
	Secrets    *secrets.Engine
	GenLog     *genlog.Log
	Logger     *telemetry.Logger
}

func newApp() (*app, error) {
	roots := layout.Resolve(layout.Overrides{HomeRoot: flagHomeRoot, XDGRoot: flagXDGRoot}, os.Getenv)

	cfg, err := config.Load(roots.ConfigFile())
	if err != nil {
		if os.IsNotExist(unwrapPathErr(err)) {
			return nil, errs.Wrap(errs.KindConfigInvalid, fmt.Errorf("no configuration found at %s; run 'hometree init' first", roots.ConfigFile()))
		}
		return nil, err
	}

	gitDir := cfg.Repo.GitDir
	if gitDir == "" {
		gitDir = roots.DefaultGitDir()
	}
	workTree := cfg.Repo.WorkTree
	if workTree == "" {
		workTree = roots.HomeRoot
	}

	classifierView, err := manageset.FromConfig(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, err)
	}

	logger := telemetry.New(telemetry.Config{
		Level:   telemetry.LevelInfo,
		Service: "hometree",
		Quiet:   flagQuiet,
	})

	var secretsEngine *secrets.Engine
	if cfg.Secrets.Enabled {
		secretsEngine = secrets.New(roots.HomeRoot, cfg.Secrets)
		if sufficient, limitKB := secrets.CheckMlockLimit(); !sufficient {
			logger.Warn("mlock limit may allow decrypted secret plaintext to swap", "limit_kb", limitKB, "required_kb", 1024)
		}
	}

	return &app{
		Roots:      roots,
		Config:     cfg,
		Classifier: manageset.New(classifierView),
		Repo:       store.Open(gitDir, workTree),
		Secrets:    secretsEngine,
		GenLog:     genlog.Open(roots.GenerationsLog()),
		Logger:     logger,
	}, nil
}

// saveConfig re-encodes a's configuration back to its on-disk location,
// used by track/untrack/secret add which mutate configuration in place.
func (a *app) saveConfig() error {
	data, err := config.Encode(a.Config)
	if err != nil {
		return errs.Wrap(errs.KindConfigInvalid, err)
	}
	if err := os.MkdirAll(filepath.Dir(a.Roots.ConfigFile()), 0o755); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	if err := os.WriteFile(a.Roots.ConfigFile(), data, 0o644); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	return nil
}

// rebuildClassifier re-derives the classifier after a's Config has been
// mutated, so subsequent operations in the same invocation see the change.
func (a *app) rebuildClassifier() error {
	view, err := manageset.FromConfig(a.Config)
	if err != nil {
		return errs.Wrap(errs.KindConfigInvalid, err)
	}
	a.Classifier = manageset.New(view)
	return nil
}

func unwrapPathErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if os.IsNotExist(err) {
			return err
		}
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
	return err
}

// backgroundCtx is the context one-shot commands run under; none of them
// need cancellation beyond the process lifetime.
func backgroundCtx() context.Context { return context.Background() }

// configHash fingerprints the configuration used for a deploy or snapshot,
// recorded on every generation record so a later audit can tell whether
// two generations ran under the same configuration.
func configHash(cfg config.V) string {
	data, err := config.Encode(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
