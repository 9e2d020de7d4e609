package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hometree/hometree/internal/errs"
)

func runLog(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	records, err := a.GenLog.ReadAll()
	if err != nil {
		return errs.Wrap(errs.KindIOError, err)
	}

	if flagLogLimit > 0 && len(records) > flagLogLimit {
		records = records[len(records)-flagLogLimit:]
	}

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		rollback := ""
		if r.Rollback {
			rollback = " [rollback]"
		}
		fmt.Printf("%s  %s  %s%s\n", r.Timestamp.Format("2006-01-02T15:04:05Z"), r.RevisionID, r.Message, rollback)
	}
	return nil
}
