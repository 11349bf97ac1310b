package commands

import (
	"context"
	"fmt"

	"ArchiveKeeper/internal/cli/bootstrap"
	"ArchiveKeeper/internal/scheduler"
)

type backupCmd struct{}

func (backupCmd) Name() string        { return "backup" }
func (backupCmd) Description() string { return "Снять копию каталога и удалить устаревшие" }
func (backupCmd) Usage() string       { return "backup" }

func (backupCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	if app.Config.BackupDir == "" {
		return fmt.Errorf("backup directory is not configured")
	}
	b := scheduler.NewCatalogBackupStore(app.Store, app.Config.BackupDir)
	name, err := b.Backup(ctx)
	if err != nil {
		return err
	}
	removed, err := b.Prune(ctx, app.Config.BackupKeep)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "backup %s written to %s, %d old removed\n", name, b.Dir(), len(removed))
	return nil
}

func init() {
	RegisterCmd(backupCmd{})
}
