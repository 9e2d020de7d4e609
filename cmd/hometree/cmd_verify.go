package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/verify"
)

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	revision, err := a.Repo.Resolve(ctx, flagVerifyRev)
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	opts := verify.Options{
		HomeRoot:    a.Roots.HomeRoot,
		Strict:      flagVerifyStrict,
		SecretsMode: verify.SecretsMode(flagVerifySecrets),
		ShowPaths:   flagVerifyShowPaths,
		Secrets:     a.Secrets,
		SecretRules: a.Config.Secrets.Rules,
	}

	report, err := verify.Run(ctx, a.Repo, revision, a.Classifier, opts)
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	if flagVerifyJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errs.Wrap(errs.KindIOError, err)
		}
		fmt.Println(string(data))
	} else {
		for _, entry := range report.Entries {
			if entry.Detail != "" {
				fmt.Printf("%-28s %s (%s)\n", entry.Kind, entry.Path, entry.Detail)
			} else {
				fmt.Printf("%-28s %s\n", entry.Kind, entry.Path)
			}
		}
	}

	if !report.Clean() {
		return fmt.Errorf("drift detected in %d path(s)", len(report.Entries))
	}
	return nil
}
