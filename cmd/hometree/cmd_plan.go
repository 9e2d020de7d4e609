package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/deploy"
	"github.com/hometree/hometree/internal/errs"
)

func runPlanDeploy(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := backgroundCtx()

	revision, err := a.Repo.Resolve(ctx, args[0])
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	plan, err := deploy.Plan(ctx, a.Repo, revision, a.Roots.HomeRoot, a.Classifier)
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	for _, action := range plan {
		fmt.Printf("%s %s\n", action.Kind, action.Path)
	}
	return nil
}
