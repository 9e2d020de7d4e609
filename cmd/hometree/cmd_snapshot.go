package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/secrets"
)

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	message := flagSnapshotMessage
	if flagSnapshotAuto {
		if err := config.RequireAutoMessageTemplate(a.Config); err != nil {
			return errs.Wrap(errs.KindConfigInvalid, err)
		}
		message = a.Config.Snapshot.AutoMessageTemplate
	}

	if a.Secrets != nil {
		statuses, err := a.Secrets.Status(ctx, a.Repo, a.Config.Secrets.Rules)
		if err != nil {
			return err
		}
		if err := secrets.GuardSnapshot(statuses); err != nil {
			return err
		}
	}

	revision, err := a.Repo.Commit(ctx, message)
	if err != nil {
		return errs.Wrap(errs.KindIndexWriteFailed, err)
	}

	host, _ := os.Hostname()
	user := os.Getenv("USER")
	rec := genlog.Record{
		Timestamp:      time.Now().UTC(),
		RevisionID:     revision,
		Host:           host,
		User:           user,
		Message:        message,
		ConfigHash:     configHash(a.Config),
		ActionsSummary: "snapshot",
	}
	if err := a.GenLog.Append(rec); err != nil {
		return errs.Wrap(errs.KindIndexWriteFailed, err)
	}

	fmt.Println(revision)
	return nil
}
