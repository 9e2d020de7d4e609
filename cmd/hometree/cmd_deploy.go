package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/deploy"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/lockfile"
	"github.com/hometree/hometree/internal/secrets"
)

func runDeploy(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	lock, err := lockfile.Acquire(a.Roots.LockFile(a.Repo.GitDir), "deploy")
	if err != nil {
		return err
	}
	defer lock.Release()

	revision, err := a.Repo.Resolve(ctx, args[0])
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	plan, err := deploy.Plan(ctx, a.Repo, revision, a.Roots.HomeRoot, a.Classifier)
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	secretsEngine := a.Secrets
	if flagDeployNoSecrets {
		secretsEngine = nil
	}
	backupRoot := a.Roots.BackupRoot()
	backupPolicy := a.Config.Secrets.BackupPolicy
	if flagDeployNoBackup {
		backupRoot = ""
		backupPolicy = config.BackupSkip
	}

	opts := deploy.Options{
		HomeRoot:     a.Roots.HomeRoot,
		BackupRoot:   backupRoot,
		SecretRules:  a.Config.Secrets.Rules,
		Secrets:      secretsEngine,
		BackupPolicy: backupPolicy,
	}

	result, err := deploy.Apply(ctx, a.Repo, plan, opts)
	if err != nil {
		return err
	}

	if secretsEngine != nil {
		if err := writeSecretPlaintexts(plan, a.Config.Secrets.Rules, secretsEngine); err != nil {
			return err
		}
	}

	host, _ := os.Hostname()
	rec := genlog.Record{
		Timestamp:      time.Now().UTC(),
		RevisionID:     revision,
		Host:           host,
		User:           os.Getenv("USER"),
		ConfigHash:     configHash(a.Config),
		BackupDir:      result.BackupDir,
		ActionsSummary: summarizePlan(plan),
	}
	if err := deploy.Commit(a.GenLog, rec); err != nil {
		return errs.Wrap(errs.KindIndexWriteFailed, err)
	}

	fmt.Println(revision)
	return nil
}

// writeSecretPlaintexts decrypts a rule's ciphertext sidecar to its
// managed plaintext location whenever that sidecar was part of the plan
// just applied.
func writeSecretPlaintexts(plan []deploy.Action, rules []config.SecretRule, engine *secrets.Engine) error {
	touched := map[string]bool{}
	for _, action := range plan {
		if action.Kind == deploy.ActionDelete {
			continue
		}
		touched[action.Path.String()] = true
	}
	for _, rule := range rules {
		if !touched[rule.ResolvedCiphertextPath(engine.Cfg.SidecarSuffix)] {
			continue
		}
		if err := engine.Decrypt(rule); err != nil {
			return err
		}
	}
	return nil
}

func summarizePlan(plan []deploy.Action) string {
	var creates, updates, deletes int
	for _, a := range plan {
		switch a.Kind {
		case deploy.ActionCreate:
			creates++
		case deploy.ActionUpdate:
			updates++
		case deploy.ActionDelete:
			deletes++
		}
	}
	return fmt.Sprintf("create=%d update=%d delete=%d", creates, updates, deletes)
}
