package commands

import (
	"context"
	"fmt"
	"strings"

	"ArchiveKeeper/internal/cli/bootstrap"
)

const defaultUnlockReason = "manual unlock"

type unlockCmd struct{}

func (unlockCmd) Name() string        { return "unlock" }
func (unlockCmd) Description() string { return "Снять блокировку учётной записи" }
func (unlockCmd) Usage() string       { return "unlock <identity> [reason...]" }

func (unlockCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	reason := strings.TrimSpace(strings.Join(args[1:], " "))
	if reason == "" {
		reason = defaultUnlockReason
	}
	if err := app.Lockout.UnlockAccount(ctx, args[0], reason, nil); err != nil {
		return err
	}
	fmt.Fprintf(Out, "%s unlocked\n", args[0])
	return nil
}

type lockedCmd struct{}

func (lockedCmd) Name() string        { return "locked" }
func (lockedCmd) Description() string { return "Список заблокированных учётных записей" }
func (lockedCmd) Usage() string       { return "locked" }

func (lockedCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	list, err := app.Lockout.ListLocked(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(Out, "no locked accounts")
		return nil
	}
	for _, info := range list {
		until := "-"
		if info.LockedUntil != nil {
			until = info.LockedUntil.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(Out, "%-32s attempts=%d until=%s\n", info.Identity, info.FailedAttempts, until)
	}
	return nil
}

func init() {
	RegisterCmd(unlockCmd{})
	RegisterCmd(lockedCmd{})
}
