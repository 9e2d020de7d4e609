package main

import (
	"errors"

	"github.com/hometree/hometree/internal/errs"
)

// exitCode maps the error taxonomy to a process exit status. Validation
// and classifier refusals exit 2; I/O and applier failures exit 3; a
// locked repository or unreachable daemon exits 4; anything unrecognized
// (including plain Go errors from library code) exits 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var tagged *errs.Error
	if !errors.As(err, &tagged) {
		return 1
	}
	switch tagged.Kind {
	case errs.KindConfigInvalid, errs.KindPathOutsideHome, errs.KindPathIsDenylisted, errs.KindPathIsSecret:
		return 2
	case errs.KindSymlinkEscapesHome, errs.KindDirectoryInTheWay, errs.KindFileInTheWayOfDirectory,
		errs.KindBackupFailed, errs.KindWriteFailed, errs.KindIndexWriteFailed, errs.KindIOError,
		errs.KindPlaintextStaged, errs.KindNoRecipients, errs.KindNoIdentities, errs.KindDecryptError,
		errs.KindPlaintextMissing, errs.KindNotEnoughGenerations:
		return 3
	case errs.KindLockBusy, errs.KindIpcUnavailable:
		return 4
	default:
		return 1
	}
}

