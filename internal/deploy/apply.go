package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hometree/hometree/internal/atomicfile"
	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/genlog"
	"github.com/hometree/hometree/internal/pathutil"
	"github.com/hometree/hometree/internal/secrets"
	"github.com/hometree/hometree/internal/store"
	"github.com/hometree/hometree/internal/telemetry"
)

// Options configures one Apply call.
type Options struct {
	HomeRoot    string
	BackupRoot  string // parent directory under which a timestamped backup set is created
	DryRun      bool
	SecretRules []config.SecretRule   // rules whose plaintext path needs secrets-aware backup handling
	Secrets     *secrets.Engine       // nil when secrets are disabled
	BackupPolicy config.BackupPolicy
}

// Result summarizes what Apply did.
type Result struct {
	BackupDir string
	Applied   []Action
}

// Apply executes plan against the live home directory in three phases:
// build a backup set of every path the plan will overwrite or remove,
// apply creates/updates/deletes under containment and type-transition
// guards, and — on full success — leave the backup set in place for the
// caller to reference from a generations-log record. Failure at any step
// aborts immediately: hometree never attempts an automatic rollback, and
// the backup set from phase one is left on disk either way.
func Apply(ctx context.Context, repo *store.Repo, plan []Action, opts Options) (Result, error) {
	telemetry.DeploysTotal.Inc()

	backupDir, err := backupSet(plan, opts)
	if err != nil {
		telemetry.DeployFailuresTotal.Inc()
		return Result{}, errs.Wrap(errs.KindBackupFailed, err)
	}

	var applied []Action
	for _, action := range plan {
		if opts.DryRun {
			applied = append(applied, action)
			continue
		}
		if err := applyOne(ctx, repo, action, opts); err != nil {
			telemetry.DeployFailuresTotal.Inc()
			return Result{BackupDir: backupDir, Applied: applied}, err
		}
		applied = append(applied, action)
	}

	return Result{BackupDir: backupDir, Applied: applied}, nil
}

// backupSet copies the pre-deploy content of every path the plan will
// touch into a timestamped directory under opts.BackupRoot, honoring
// secrets.backup_policy for any path that is a declared secret plaintext.
func backupSet(plan []Action, opts Options) (string, error) {
	if opts.BackupRoot == "" || len(plan) == 0 || opts.DryRun {
		return "", nil
	}

	secretPlaintexts := map[string]config.SecretRule{}
	for _, r := range opts.SecretRules {
		secretPlaintexts[r.PlaintextPath] = r
	}

	backupDir := filepath.Join(opts.BackupRoot, backupSetName())

	var any bool
	for _, action := range plan {
		if action.Kind == ActionCreate {
			continue // nothing live to back up
		}
		livePath := filepath.Join(opts.HomeRoot, action.Path.String())
		info, err := os.Lstat(livePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if info.IsDir() {
			continue // directory backups are not meaningful; their files are backed up individually
		}

		if rule, isSecret := secretPlaintexts[action.Path.String()]; isSecret {
			if err := backupSecretPlaintext(backupDir, action.Path.String(), livePath, rule, opts); err != nil {
				return "", err
			}
			any = true
			continue
		}

		dest := filepath.Join(backupDir, action.Path.String())
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(livePath)
			if err != nil {
				return "", err
			}
			if err := os.Symlink(target, dest); err != nil {
				return "", err
			}
		} else {
			data, err := os.ReadFile(livePath)
			if err != nil {
				return "", err
			}
			if err := atomicfile.Write(dest, data, info.Mode().Perm()); err != nil {
				return "", err
			}
		}
		any = true
	}

	if !any {
		return "", nil
	}
	return backupDir, nil
}

func backupSecretPlaintext(backupDir, relPath, livePath string, rule config.SecretRule, opts Options) error {
	switch opts.BackupPolicy {
	case config.BackupSkip:
		return nil
	case config.BackupPlaintext:
		data, err := os.ReadFile(livePath)
		if err != nil {
			return err
		}
		dest := filepath.Join(backupDir, relPath)
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return err
		}
		return atomicfile.Write(dest, data, 0o600)
	case config.BackupEncrypt, "":
		if opts.Secrets == nil {
			return fmt.Errorf("secret backup policy %q requires a secrets engine", opts.BackupPolicy)
		}
		data, err := os.ReadFile(livePath)
		if err != nil {
			return err
		}
		recipients, err := secrets.ParseRecipients(opts.Secrets.Cfg.Recipients)
		if err != nil {
			return err
		}
		envelope, err := secrets.Encrypt(data, recipients)
		if err != nil {
			return err
		}
		dest := filepath.Join(backupDir, relPath+opts.Secrets.Cfg.SidecarSuffix)
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return err
		}
		return atomicfile.Write(dest, envelope, 0o600)
	default:
		return fmt.Errorf("unknown backup policy %q", opts.BackupPolicy)
	}
}

func applyOne(ctx context.Context, repo *store.Repo, action Action, opts Options) error {
	livePath := filepath.Join(opts.HomeRoot, action.Path.String())

	switch action.Kind {
	case ActionDelete:
		return applyDelete(livePath)
	case ActionCreate, ActionUpdate:
		return applyWrite(ctx, repo, livePath, action, opts)
	default:
		return fmt.Errorf("unknown action kind %v", action.Kind)
	}
}

func applyDelete(livePath string) error {
	info, err := os.Lstat(livePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindWriteFailed, err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(livePath)
		if err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		if len(entries) > 0 {
			// Non-empty: leave it. A directory only reaches a delete action
			// once every managed file under it has already been deleted
			// (child-before-parent ordering); a non-empty directory here
			// holds content hometree does not manage.
			return nil
		}
	}
	if err := os.Remove(livePath); err != nil {
		return errs.Wrap(errs.KindWriteFailed, err)
	}
	return nil
}

func applyWrite(ctx context.Context, repo *store.Repo, livePath string, action Action, opts Options) error {
	if err := guardTypeTransition(livePath, action); err != nil {
		return err
	}

	switch action.TargetKind {
	case store.KindDirectory:
		if err := os.MkdirAll(livePath, 0o755); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		return nil

	case store.KindSymlink:
		target, err := repo.ReadBlob(ctx, action.BlobID)
		if err != nil {
			return errs.Wrap(errs.KindIOError, err)
		}
		resolved := pathutil.ResolveSymlinkTarget(opts.HomeRoot, filepath.Dir(livePath), string(target))
		if !pathutil.WithinHome(opts.HomeRoot, resolved) {
			return errs.WithPath(errs.KindSymlinkEscapesHome, action.Path.String(), "symlink target resolves outside the home directory")
		}
		if err := os.MkdirAll(filepath.Dir(livePath), 0o755); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		os.Remove(livePath)
		if err := os.Symlink(string(target), livePath); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		return nil

	default: // regular or executable
		content, err := repo.ReadBlob(ctx, action.BlobID)
		if err != nil {
			return errs.Wrap(errs.KindIOError, err)
		}
		if err := os.MkdirAll(filepath.Dir(livePath), 0o755); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		mode := os.FileMode(0o644)
		if action.TargetKind == store.KindExecutable {
			mode = 0o755
		}
		if err := atomicfile.Write(livePath, content, mode); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
		return nil
	}
}

// guardTypeTransition rejects writes that would silently replace a
// directory with a file or vice versa; the caller must resolve the
// conflict explicitly (e.g. via --force in a future revision of the CLI).
func guardTypeTransition(livePath string, action Action) error {
	info, err := os.Lstat(livePath)
	if err != nil {
		return nil // nothing in the way
	}
	if info.IsDir() && action.TargetKind != store.KindDirectory {
		return errs.WithPath(errs.KindDirectoryInTheWay, action.Path.String(), "a directory occupies the path a file would be deployed to")
	}
	if !info.IsDir() && action.TargetKind == store.KindDirectory {
		return errs.WithPath(errs.KindFileInTheWayOfDirectory, action.Path.String(), "a file occupies the path a directory would be deployed to")
	}
	return nil
}

// Commit appends a generation record for an applied plan.
func Commit(log *genlog.Log, rec genlog.Record) error {
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("generation record requires a timestamp")
	}
	return log.Append(rec)
}

// backupSetName stamps a backup directory with both a human-readable
// timestamp and a short random suffix, so two deploys landing in the same
// second never collide on the same backup set.
func backupSetName() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.New().String()[:8])
}
