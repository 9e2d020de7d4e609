// Package manageset implements the managed-set classifier: the single
// decision point consulted by every other component to determine whether a
// path is in scope, ignored, or a secret.
package manageset

import (
	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/pathutil"
)

// Classification is the classifier's verdict for a path.
type Classification int

const (
	InRoot Classification = iota
	ExtraFile
	OutsideAndDisallowed
	// OutsideAllowed is the caller-visible "treated as out-of-scope but
	// permitted" case: allow_outside (config or flag) was set, so the path
	// is not rejected even though it is not itself managed. It distinguishes
	// "proceed, the caller may add this to extra_files" from the rejecting
	// OutsideAndDisallowed case.
	OutsideAllowed
	Ignored
	SecretPlaintext
	SecretCiphertext
)

func (c Classification) String() string {
	switch c {
	case InRoot:
		return "InRoot"
	case ExtraFile:
		return "ExtraFile"
	case OutsideAndDisallowed:
		return "OutsideAndDisallowed"
	case OutsideAllowed:
		return "OutsideAllowed"
	case Ignored:
		return "Ignored"
	case SecretPlaintext:
		return "SecretPlaintext"
	case SecretCiphertext:
		return "SecretCiphertext"
	default:
		return "Unknown"
	}
}

// Result is the classifier's output: a classification plus a reason tag
// used for watcher debug logging.
type Result struct {
	Class  Classification
	Reason string
}

// Managed reports whether a classification counts as part of the managed
// set proper (tracked, not merely permitted).
func (c Classification) Managed() bool {
	return c == InRoot || c == ExtraFile
}

// Classifier evaluates RPs against a loaded configuration.
type Classifier struct {
	cfg V
}

// V is the subset of config.V the classifier needs; kept as its own type so
// callers can pass a config.V directly (see FromConfig) without introducing
// a back-pointer from the classifier into the full configuration object.
type V struct {
	ManagedRoots  []pathutil.RP
	ExtraFiles    []pathutil.RP
	IgnorePatterns []string
	SecretsBySidecar   map[string]config.SecretRule // ciphertext path -> rule
	SecretsByPlaintext map[string]config.SecretRule // plaintext path -> rule
	AllowOutside  bool
}

// FromConfig builds the classifier's view from a full configuration,
// parsing manage.roots/extra_files into RPs and indexing secret rules by
// both their plaintext and resolved ciphertext paths.
func FromConfig(cfg config.V) (V, error) {
	out := V{
		IgnorePatterns:     append([]string(nil), cfg.Ignore.Patterns...),
		SecretsBySidecar:   map[string]config.SecretRule{},
		SecretsByPlaintext: map[string]config.SecretRule{},
		AllowOutside:       cfg.Manage.AllowOutside,
	}
	for _, r := range cfg.Manage.Roots {
		rp, err := pathutil.New(r)
		if err != nil {
			return V{}, err
		}
		out.ManagedRoots = append(out.ManagedRoots, rp)
	}
	for _, f := range cfg.Manage.ExtraFiles {
		rp, err := pathutil.New(f)
		if err != nil {
			return V{}, err
		}
		out.ExtraFiles = append(out.ExtraFiles, rp)
	}
	if cfg.Secrets.Enabled {
		for _, rule := range cfg.Secrets.Rules {
			out.SecretsByPlaintext[rule.PlaintextPath] = rule
			out.SecretsBySidecar[rule.ResolvedCiphertextPath(cfg.Secrets.SidecarSuffix)] = rule
		}
	}
	return out, nil
}

// New constructs a Classifier over the given view.
func New(v V) *Classifier {
	return &Classifier{cfg: v}
}

// ManagedRootRPs returns the configured managed roots.
func (c *Classifier) ManagedRootRPs() []pathutil.RP { return c.cfg.ManagedRoots }

// ExtraFileRPs returns the configured extra files.
func (c *Classifier) ExtraFileRPs() []pathutil.RP { return c.cfg.ExtraFiles }

// Classify evaluates the classification rules, in order, for a single path.
// allowOutsideFlag is an explicit per-call override (the CLI's
// --allow-outside flag); it is OR'd with the configuration-level
// manage.allow_outside setting.
func (c *Classifier) Classify(p pathutil.RP, allowOutsideFlag bool) Result {
	s := p.String()

	if _, ok := c.cfg.SecretsBySidecar[s]; ok {
		return Result{Class: SecretCiphertext, Reason: "secret-ciphertext"}
	}
	if _, ok := c.cfg.SecretsByPlaintext[s]; ok {
		return Result{Class: SecretPlaintext, Reason: "is-secret-plaintext"}
	}
	for _, pat := range c.cfg.IgnorePatterns {
		if pathutil.MatchIgnore(pat, p) {
			return Result{Class: Ignored, Reason: "ignored"}
		}
	}
	for _, root := range c.cfg.ManagedRoots {
		if pathutil.Under(root, p) {
			return Result{Class: InRoot, Reason: "in-root"}
		}
	}
	for _, extra := range c.cfg.ExtraFiles {
		if extra == p {
			return Result{Class: ExtraFile, Reason: "extra-file"}
		}
	}
	if c.cfg.AllowOutside || allowOutsideFlag {
		return Result{Class: OutsideAllowed, Reason: "allowed-outside"}
	}
	return Result{Class: OutsideAndDisallowed, Reason: "not-managed"}
}
