package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/deploy"
	"github.com/hometree/hometree/internal/errs"
)

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	managed, err := deploy.WalkLiveManaged(a.Roots.HomeRoot, a.Classifier)
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	paths := make([]string, 0, len(managed))
	for p := range managed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		st, err := a.Repo.IndexStatus(ctx, p)
		if err != nil {
			return errs.Wrap(errs.KindIOError, err)
		}
		fmt.Printf("%-10s %s\n", st, p)
	}

	if a.Secrets != nil {
		statuses, err := a.Secrets.Status(ctx, a.Repo, a.Config.Secrets.Rules)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			flag := ""
			if st.PlaintextStaged {
				flag = " (plaintext staged!)"
			}
			fmt.Printf("%-10s %s%s\n", "secret", st.Rule.PlaintextPath, flag)
		}
	}
	return nil
}
