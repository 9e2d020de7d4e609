// Package rollback selects a prior revision — by step count or by
// explicit ref — and redeploys it through the same applier deploy uses,
// recorded as a rollback generation.
package rollback

import (
	"context"
	"fmt"

	"github.com/hometree/hometree/internal/deploy"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/manageset"
	"github.com/hometree/hometree/internal/store"
)

// Target resolves which revision rollback should deploy.
type Target struct {
	Steps int    // default 1: roll back Steps generations
	To    string // explicit ref; takes precedence over Steps when non-empty
}

// Resolve turns a Target into a concrete revision id.
//
// With Steps, it prefers the Nth-prior record in the generations log; only
// when fewer than Steps prior records exist does it fall back to
// HEAD~Steps against the repository itself — the resolved behavior for the
// "what if the log is shorter than the repository's history" open
// question, so a log truncated or reset independently of the repository
// doesn't make rollback unnecessarily fail.
func Resolve(ctx context.Context, repo *store.Repo, log *genlog.Log, target Target) (string, error) {
	if target.To != "" {
		rev, err := repo.Resolve(ctx, target.To)
		if err != nil {
			return "", errs.Wrap(errs.KindIOError, fmt.Errorf("resolving rollback target %q: %w", target.To, err))
		}
		return rev, nil
	}

	steps := target.Steps
	if steps <= 0 {
		steps = 1
	}

	records, err := log.ReadAll()
	if err != nil {
		return "", errs.Wrap(errs.KindIOError, err)
	}
	if rec, ok := genlog.NthPrior(records, steps); ok {
		return rec.RevisionID, nil
	}

	ref := fmt.Sprintf("HEAD~%d", steps)
	if !repo.RevisionExists(ctx, ref) {
		return "", errs.New(errs.KindNotEnoughGenerations, fmt.Sprintf("fewer than %d generations exist", steps))
	}
	return repo.Resolve(ctx, ref)
}

// Run resolves target, plans a deploy of it, and applies that plan, then
// appends a generation record marked as a rollback.
func Run(ctx context.Context, repo *store.Repo, log *genlog.Log, classifier *manageset.Classifier, target Target, opts deploy.Options, meta genlog.Record) (deploy.Result, error) {
	revision, err := Resolve(ctx, repo, log, target)
	if err != nil {
		return deploy.Result{}, err
	}

	plan, err := deploy.Plan(ctx, repo, revision, opts.HomeRoot, classifier)
	if err != nil {
		return deploy.Result{}, err
	}

	result, err := deploy.Apply(ctx, repo, plan, opts)
	if err != nil {
		return result, err
	}

	meta.RevisionID = revision
	meta.Rollback = true
	meta.BackupDir = result.BackupDir
	if err := deploy.Commit(log, meta); err != nil {
		return result, errs.Wrap(errs.KindIndexWriteFailed, err)
	}
	return result, nil
}
