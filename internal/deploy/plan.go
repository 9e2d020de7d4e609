// Package deploy diffs a committed revision against the live home
// directory and applies the difference under backup, containment, and
// type-transition guards.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hometree/hometree/internal/manageset"
	"github.com/hometree/hometree/internal/pathutil"
	"github.com/hometree/hometree/internal/store"
)

// ActionKind identifies what a planned action will do to a live path.
type ActionKind int

const (
	ActionCreate ActionKind = iota
	ActionUpdate
	ActionDelete
)

func (a ActionKind) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one step of a deploy plan.
type Action struct {
	Path          pathutil.RP
	Kind          ActionKind
	TargetKind    store.Kind // meaningful for create/update
	Mode          string     // git mode string, meaningful for create/update
	BlobID        string      // meaningful for create/update
	SymlinkTarget string      // not set by Plan; the applier reads a symlink's target from BlobID
}

// Plan walks revision's tree via repo, classifies every managed live path,
// and returns the ordered set of actions needed to make the live home
// directory match the tree. Actions are ordered parent-before-child for
// create/update and child-before-parent for delete, each group broken by
// lexicographic path order, so applying them in sequence never creates a
// file under a not-yet-created directory or deletes a directory before its
// contents.
func Plan(ctx context.Context, repo *store.Repo, revision, homeRoot string, classifier *manageset.Classifier) ([]Action, error) {
	target := map[string]store.TreeEntry{}
	if err := repo.WalkTree(ctx, revision, func(e store.TreeEntry) error {
		target[e.Path] = e
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walking target tree: %w", err)
	}

	live, err := walkLiveManaged(homeRoot, classifier)
	if err != nil {
		return nil, fmt.Errorf("walking live managed files: %w", err)
	}

	var creates, updates, deletes []Action

	for p, entry := range target {
		rp, err := pathutil.New(p)
		if err != nil {
			return nil, fmt.Errorf("invalid tree path %q: %w", p, err)
		}
		delete(live, p)

		livePath := filepath.Join(homeRoot, p)
		info, statErr := os.Lstat(livePath)
		if statErr != nil {
			if !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("statting %s: %w", livePath, statErr)
			}
			creates = append(creates, actionFromEntry(rp, entry, ActionCreate))
			continue
		}

		changed, err := liveDiffersFromEntry(repo, ctx, livePath, info, entry)
		if err != nil {
			return nil, err
		}
		if changed {
			updates = append(updates, actionFromEntry(rp, entry, ActionUpdate))
		}
	}

	for p := range live {
		rp, err := pathutil.New(p)
		if err != nil {
			continue
		}
		deletes = append(deletes, Action{Path: rp, Kind: ActionDelete})
	}

	sortByDepthAsc(creates)
	sortByDepthAsc(updates)
	sortByDepthDesc(deletes)

	actions := make([]Action, 0, len(creates)+len(updates)+len(deletes))
	actions = append(actions, creates...)
	actions = append(actions, updates...)
	actions = append(actions, deletes...)
	return actions, nil
}

func actionFromEntry(rp pathutil.RP, entry store.TreeEntry, kind ActionKind) Action {
	return Action{
		Path:       rp,
		Kind:       kind,
		TargetKind: entry.Kind,
		Mode:       entry.Mode,
		BlobID:     entry.BlobID,
	}
}

func liveDiffersFromEntry(repo *store.Repo, ctx context.Context, livePath string, info fs.FileInfo, entry store.TreeEntry) (bool, error) {
	liveIsSymlink := info.Mode()&os.ModeSymlink != 0
	targetIsSymlink := entry.Kind == store.KindSymlink
	if liveIsSymlink != targetIsSymlink {
		return true, nil
	}
	if targetIsSymlink {
		liveTarget, err := os.Readlink(livePath)
		if err != nil {
			return false, fmt.Errorf("reading live symlink %s: %w", livePath, err)
		}
		blobTarget, err := repo.ReadBlob(ctx, entry.BlobID)
		if err != nil {
			return false, err
		}
		return liveTarget != string(blobTarget), nil
	}
	if info.IsDir() {
		return entry.Kind != store.KindDirectory, nil
	}
	if entry.Kind == store.KindDirectory {
		return true, nil
	}

	wantExecutable := entry.Kind == store.KindExecutable
	haveExecutable := info.Mode().Perm()&0o111 != 0
	if wantExecutable != haveExecutable {
		return true, nil
	}

	liveContent, err := os.ReadFile(livePath)
	if err != nil {
		return false, fmt.Errorf("reading live file %s: %w", livePath, err)
	}
	blobContent, err := repo.ReadBlob(ctx, entry.BlobID)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(liveContent, blobContent), nil
}

// WalkLiveManaged exposes walkLiveManaged for callers outside this package
// (the status command) that need the current managed-set membership
// without computing a full deploy plan.
func WalkLiveManaged(homeRoot string, classifier *manageset.Classifier) (map[string]struct{}, error) {
	return walkLiveManaged(homeRoot, classifier)
}

// walkLiveManaged walks every managed root and extra file on disk,
// returning the set of managed relative paths currently present. It never
// descends outside a managed root or extra file — the full home directory
// is never scanned.
func walkLiveManaged(homeRoot string, classifier *manageset.Classifier) (map[string]struct{}, error) {
	out := map[string]struct{}{}

	for _, root := range classifier.ManagedRootRPs() {
		base := filepath.Join(homeRoot, root.String())
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			rel, relErr := filepath.Rel(homeRoot, p)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				return nil
			}
			rp, err := pathutil.New(rel)
			if err != nil {
				return nil
			}
			res := classifier.Classify(rp, false)
			if res.Class.Managed() {
				out[rel] = struct{}{}
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	for _, extra := range classifier.ExtraFileRPs() {
		p := filepath.Join(homeRoot, extra.String())
		if _, err := os.Lstat(p); err == nil {
			out[extra.String()] = struct{}{}
		}
	}

	return out, nil
}

func sortByDepthAsc(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		di, dj := actions[i].Path.Depth(), actions[j].Path.Depth()
		if di != dj {
			return di < dj
		}
		return actions[i].Path < actions[j].Path
	})
}

func sortByDepthDesc(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		di, dj := actions[i].Path.Depth(), actions[j].Path.Depth()
		if di != dj {
			return di > dj
		}
		return actions[i].Path < actions[j].Path
	})
}
