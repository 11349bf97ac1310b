package commands

import (
	"context"
	"fmt"
	"strconv"

	"ArchiveKeeper/internal/cli/bootstrap"
)

type verifyCmd struct{}

func (verifyCmd) Name() string        { return "verify" }
func (verifyCmd) Description() string { return "Проверить целостность одного файла" }
func (verifyCmd) Usage() string       { return "verify <file-id>" }

func (verifyCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	res, err := app.Fixity.VerifyFile(ctx, args[0], nil)
	if err != nil {
		return err
	}
	if res.IsValid {
		fmt.Fprintf(Out, "%s: OK (%s)\n", res.FileID, res.Expected)
		return nil
	}
	fmt.Fprintf(Out, "%s: FAILED expected=%s actual=%s %s\n", res.FileID, res.Expected, res.Actual, res.Error)
	return fmt.Errorf("fixity check failed for %s", res.FileID)
}

type verifyAllCmd struct{}

func (verifyAllCmd) Name() string        { return "verify-all" }
func (verifyAllCmd) Description() string { return "Пакетная проверка целостности доступных файлов" }
func (verifyAllCmd) Usage() string       { return "verify-all [limit]" }

func (verifyAllCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	limit := app.Config.FixityBatchSize
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return ErrUsage
		}
		limit = n
	default:
		return ErrUsage
	}

	report, err := app.Fixity.VerifyAll(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "checked %d files: %d verified, %d failed (%s)\n",
		report.Total, report.Verified, report.Failed, report.FinishedAt.Sub(report.StartedAt))
	for _, e := range report.Errors {
		fmt.Fprintf(Out, "  %s %s: %s\n", e.FileID, e.Filename, e.Error)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed fixity", report.Failed, report.Total)
	}
	return nil
}

type reportCmd struct{}

func (reportCmd) Name() string        { return "report" }
func (reportCmd) Description() string { return "История проверок целостности файла" }
func (reportCmd) Usage() string       { return "report <file-id>" }

func (reportCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	rep, err := app.Fixity.GetFixityReport(ctx, args[0], 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "file %s: %s\n", rep.FileID, rep.Status)
	for _, c := range rep.History {
		status := "ok"
		if !c.IsValid {
			status = "FAILED"
		}
		fmt.Fprintf(Out, "  %s  %s\n", c.CheckedAt.Format("2006-01-02 15:04:05"), status)
	}
	return nil
}

func init() {
	RegisterCmd(verifyCmd{})
	RegisterCmd(verifyAllCmd{})
	RegisterCmd(reportCmd{})
}
