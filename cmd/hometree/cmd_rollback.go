package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/deploy"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/lockfile"
	"github.com/hometree/hometree/internal/rollback"
)

func runRollback(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	lock, err := lockfile.Acquire(a.Roots.LockFile(a.Repo.GitDir), "rollback")
	if err != nil {
		return err
	}
	defer lock.Release()

	target := rollback.Target{Steps: flagRollbackSteps, To: flagRollbackTo}

	opts := deploy.Options{
		HomeRoot:     a.Roots.HomeRoot,
		BackupRoot:   a.Roots.BackupRoot(),
		SecretRules:  a.Config.Secrets.Rules,
		Secrets:      a.Secrets,
		BackupPolicy: a.Config.Secrets.BackupPolicy,
	}

	host, _ := os.Hostname()
	meta := genlog.Record{
		Timestamp:  time.Now().UTC(),
		Host:       host,
		User:       os.Getenv("USER"),
		ConfigHash: configHash(a.Config),
	}

	result, err := rollback.Run(ctx, a.Repo, a.GenLog, a.Classifier, target, opts, meta)
	if err != nil {
		return err
	}

	fmt.Println(result.BackupDir)
	for _, action := range result.Applied {
		fmt.Printf("%s %s\n", action.Kind, action.Path)
	}
	return nil
}
