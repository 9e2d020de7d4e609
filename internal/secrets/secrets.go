package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"

	"github.com/hometree/hometree/internal/atomicfile"
	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/errs"
	"github.com/hometree/hometree/internal/store"
)

// minMlockLimitKB is the smallest RLIMIT_MEMLOCK under which memguard's
// mlocked buffers for decrypted secret plaintext can reliably avoid being
// paged to swap.
const minMlockLimitKB = 1024

// Engine performs encryption, decryption, and lifecycle operations for
// declared secrets against a home directory and a secrets configuration.
type Engine struct {
	HomeRoot string
	Cfg      config.SecretsConfig
}

// New constructs an Engine.
func New(homeRoot string, cfg config.SecretsConfig) *Engine {
	return &Engine{HomeRoot: homeRoot, Cfg: cfg}
}

// CheckMlockLimit reports whether the process's RLIMIT_MEMLOCK is large
// enough for memguard to mlock decrypted secret plaintext without it being
// silently allowed to swap, and the current limit in kilobytes (-1 when
// unlimited or undeterminable). Callers should log, not fail, when this
// reports false: a low limit is a hardening gap, not a correctness one.
func CheckMlockLimit() (sufficient bool, limitKB int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB = int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// RuleStatus reports one rule's on-disk state for the status operation.
type RuleStatus struct {
	Rule              config.SecretRule
	PlaintextExists   bool
	CiphertextExists  bool
	PlaintextStaged   bool // plaintext is tracked/staged in the index — a guard violation
}

func (e *Engine) plaintextPath(rule config.SecretRule) string {
	return filepath.Join(e.HomeRoot, rule.PlaintextPath)
}

func (e *Engine) ciphertextPath(rule config.SecretRule) string {
	return filepath.Join(e.HomeRoot, rule.ResolvedCiphertextPath(e.Cfg.SidecarSuffix))
}

func (e *Engine) recipients() ([][32]byte, error) {
	return e.Recipients()
}

// Recipients parses the engine's configured recipient public keys.
func (e *Engine) Recipients() ([][32]byte, error) {
	return ParseRecipients(e.Cfg.Recipients)
}

func (e *Engine) identities() ([][32]byte, error) {
	return e.Identities()
}

// Identities reads and parses every configured identity file.
func (e *Engine) Identities() ([][32]byte, error) {
	if len(e.Cfg.IdentityFiles) == 0 {
		return nil, errs.New(errs.KindNoIdentities, "no identity_files configured")
	}
	var contents [][]byte
	for _, p := range e.Cfg.IdentityFiles {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errs.Wrap(errs.KindIOError, fmt.Errorf("reading identity file %s: %w", p, err))
		}
		contents = append(contents, data)
	}
	return ParseIdentities(contents)
}

// Encrypt reads the plaintext for rule and writes its ciphertext sidecar,
// sealed to every configured recipient.
func (e *Engine) Encrypt(rule config.SecretRule) error {
	plainPath := e.plaintextPath(rule)
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.WithPath(errs.KindPlaintextMissing, rule.PlaintextPath, "plaintext file does not exist")
		}
		return errs.Wrap(errs.KindIOError, err)
	}

	buf := memguard.NewBufferFromBytes(plaintext)
	defer buf.Destroy()

	recipients, err := e.recipients()
	if err != nil {
		return err
	}
	envelope, err := Encrypt(buf.Bytes(), recipients)
	if err != nil {
		return err
	}

	cipherPath := e.ciphertextPath(rule)
	if err := os.MkdirAll(filepath.Dir(cipherPath), 0o700); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	if err := atomicfile.Write(cipherPath, envelope, 0o600); err != nil {
		return errs.Wrap(errs.KindWriteFailed, err)
	}
	return nil
}

// Decrypt opens rule's ciphertext sidecar and writes the recovered
// plaintext to its managed location with the rule's configured mode.
// The decrypted bytes pass through an mlocked buffer and are wiped as soon
// as the write completes.
func (e *Engine) Decrypt(rule config.SecretRule) error {
	cipherPath := e.ciphertextPath(rule)
	envelope, err := os.ReadFile(cipherPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.WithPath(errs.KindPlaintextMissing, rule.ResolvedCiphertextPath(e.Cfg.SidecarSuffix), "ciphertext sidecar does not exist")
		}
		return errs.Wrap(errs.KindIOError, err)
	}

	identities, err := e.identities()
	if err != nil {
		return err
	}
	plaintext, err := Decrypt(envelope, identities)
	if err != nil {
		return err
	}

	buf := memguard.NewBufferFromBytes(plaintext)
	defer buf.Destroy()

	plainPath := e.plaintextPath(rule)
	if err := os.MkdirAll(filepath.Dir(plainPath), 0o700); err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}
	mode := os.FileMode(rule.ResolvedMode())
	if err := atomicfile.Write(plainPath, buf.Bytes(), mode); err != nil {
		return errs.Wrap(errs.KindWriteFailed, err)
	}
	return nil
}

// Refresh re-encrypts every rule's ciphertext against the engine's current
// recipient set, used after recipients.yaml-equivalent config changes so
// existing sidecars are rewrapped without requiring the plaintext to be
// re-staged.
func (e *Engine) Refresh(rules []config.SecretRule) error {
	identities, err := e.identities()
	if err != nil {
		return err
	}
	recipients, err := e.recipients()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		cipherPath := e.ciphertextPath(rule)
		envelope, err := os.ReadFile(cipherPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errs.Wrap(errs.KindIOError, err)
		}
		plaintext, err := Decrypt(envelope, identities)
		if err != nil {
			return fmt.Errorf("refreshing %s: %w", rule.PlaintextPath, err)
		}
		buf := memguard.NewBufferFromBytes(plaintext)
		newEnvelope, err := Encrypt(buf.Bytes(), recipients)
		buf.Destroy()
		if err != nil {
			return err
		}
		if err := atomicfile.Write(cipherPath, newEnvelope, 0o600); err != nil {
			return errs.Wrap(errs.KindWriteFailed, err)
		}
	}
	return nil
}

// Rekey generates a fresh identity, returning its hex-encoded private key
// (for the caller to persist to an identity file) and public key (for the
// caller to append to recipients before calling Refresh). Rekey does not
// itself mutate configuration; the CLI layer owns writing the new identity
// file and updated recipient list.
func (e *Engine) Rekey() (privHex, pubHex string, err error) {
	return GenerateIdentity()
}

// Status reports each rule's on-disk state, including whether its
// plaintext is currently staged in the repository index — a violation of
// the snapshot guard that every write path in this package is designed to
// prevent.
func (e *Engine) Status(ctx context.Context, repo *store.Repo, rules []config.SecretRule) ([]RuleStatus, error) {
	out := make([]RuleStatus, 0, len(rules))
	for _, rule := range rules {
		st := RuleStatus{Rule: rule}
		if _, err := os.Stat(e.plaintextPath(rule)); err == nil {
			st.PlaintextExists = true
		}
		if _, err := os.Stat(e.ciphertextPath(rule)); err == nil {
			st.CiphertextExists = true
		}
		if repo != nil {
			idxStatus, err := repo.IndexStatus(ctx, rule.PlaintextPath)
			if err != nil {
				return nil, errs.Wrap(errs.KindIOError, err)
			}
			st.PlaintextStaged = idxStatus != store.StatusUnchanged && idxStatus != store.StatusUntracked && idxStatus != store.StatusIgnored
		}
		out = append(out, st)
	}
	return out, nil
}

// GuardSnapshot returns errs.KindPlaintextStaged if any rule's plaintext is
// staged in the index, which the snapshot operation must refuse to commit.
func GuardSnapshot(statuses []RuleStatus) error {
	for _, st := range statuses {
		if st.PlaintextStaged {
			return errs.WithPath(errs.KindPlaintextStaged, st.Rule.PlaintextPath, "secret plaintext is staged for commit")
		}
	}
	return nil
}
