package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/pathutil"
)

func runSecretAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if a.Secrets == nil {
		return errs.New(errs.KindConfigInvalid, "secrets.enabled is false; enable it in configuration first")
	}
	ctx := backgroundCtx()

	rp, err := pathutil.New(args[0])
	if err != nil {
		return errs.WithPath(errs.KindConfigInvalid, args[0], err.Error())
	}

	rule := config.SecretRule{PlaintextPath: rp.String()}
	a.Config.Secrets.Rules = append(a.Config.Secrets.Rules, rule)
	if err := config.Validate(&a.Config); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, err)
	}

	if err := a.Secrets.Encrypt(rule); err != nil {
		return err
	}
	if err := a.Repo.Stage(ctx, rule.ResolvedCiphertextPath(a.Config.Secrets.SidecarSuffix)); err != nil {
		return errs.Wrap(errs.KindIndexWriteFailed, err)
	}

	if err := a.rebuildClassifier(); err != nil {
		return err
	}
	fmt.Println("secret declared:", rp.String())
	return a.saveConfig()
}

func runSecretRefresh(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if a.Secrets == nil {
		return errs.New(errs.KindConfigInvalid, "secrets.enabled is false")
	}
	ctx := backgroundCtx()

	rules := a.Config.Secrets.Rules
	if len(args) > 0 {
		selected := map[string]bool{}
		for _, p := range args {
			selected[filepath.Clean(p)] = true
		}
		var filtered []config.SecretRule
		for _, rule := range rules {
			if selected[filepath.Clean(rule.PlaintextPath)] {
				filtered = append(filtered, rule)
			}
		}
		rules = filtered
	}

	if err := a.Secrets.Refresh(rules); err != nil {
		return err
	}
	for _, rule := range rules {
		if err := a.Repo.Stage(ctx, rule.ResolvedCiphertextPath(a.Config.Secrets.SidecarSuffix)); err != nil {
			return errs.Wrap(errs.KindIndexWriteFailed, err)
		}
		fmt.Println("refreshed", rule.PlaintextPath)
	}
	return nil
}

func runSecretStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if a.Secrets == nil {
		return errs.New(errs.KindConfigInvalid, "secrets.enabled is false")
	}
	ctx := backgroundCtx()

	statuses, err := a.Secrets.Status(ctx, a.Repo, a.Config.Secrets.Rules)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		path := st.Rule.PlaintextPath
		if !flagSecretShowPaths {
			path = "<redacted>"
		}
		staged := ""
		if st.PlaintextStaged {
			staged = " plaintext-staged!"
		}
		fmt.Printf("%-30s plaintext=%-5v ciphertext=%-5v%s\n", path, st.PlaintextExists, st.CiphertextExists, staged)
	}
	return nil
}

func runSecretRekey(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if a.Secrets == nil {
		return errs.New(errs.KindConfigInvalid, "secrets.enabled is false")
	}

	privHex, pubHex, err := a.Secrets.Rekey()
	if err != nil {
		return err
	}

	identityPath := filepath.Join(a.Roots.ConfigRoot, "identity.age")
	if err := writeIdentityFile(identityPath, privHex); err != nil {
		return errs.Wrap(errs.KindWriteFailed, err)
	}

	hasIdentity := false
	for _, p := range a.Config.Secrets.IdentityFiles {
		if p == identityPath {
			hasIdentity = true
		}
	}
	if !hasIdentity {
		a.Config.Secrets.IdentityFiles = append(a.Config.Secrets.IdentityFiles, identityPath)
	}
	a.Config.Secrets.Recipients = append(a.Config.Secrets.Recipients, pubHex)
	if err := a.rebuildClassifier(); err != nil {
		return err
	}

	refreshEngine := a.Secrets
	refreshEngine.Cfg = a.Config.Secrets
	if err := refreshEngine.Refresh(a.Config.Secrets.Rules); err != nil {
		return err
	}

	fmt.Println("new recipient:", pubHex)
	return a.saveConfig()
}

func writeIdentityFile(path, privHex string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(privHex+"\n"), 0o600)
}
