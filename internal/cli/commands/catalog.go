package commands

import (
	"context"
	"fmt"
	"strings"

	"ArchiveKeeper/internal/cli/bootstrap"
	"ArchiveKeeper/internal/service"
)

const historyLimit = 50

type statsCmd struct{}

func (statsCmd) Name() string        { return "stats" }
func (statsCmd) Description() string { return "Сводка по каталогу архива" }
func (statsCmd) Usage() string       { return "stats" }

func (statsCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	st, err := app.Archive.GetFileStatistics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "files:        %d\n", st.TotalFiles)
	fmt.Fprintf(Out, "categories:   %d\n", st.Categories)
	fmt.Fprintf(Out, "total size:   %d bytes\n", st.TotalSize)
	fmt.Fprintf(Out, "avg rating:   %.2f\n", st.AvgRating)
	fmt.Fprintf(Out, "contributors: %d\n", st.Contributors)
	return nil
}

type searchCmd struct{}

func (searchCmd) Name() string        { return "search" }
func (searchCmd) Description() string { return "Полнотекстовый поиск по каталогу" }
func (searchCmd) Usage() string       { return "search <text...>" }

func (searchCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return ErrUsage
	}
	res, err := app.Archive.SearchFiles(ctx, service.SearchQuery{Text: text})
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "%d match(es)\n", res.Total)
	for _, h := range res.Files {
		fmt.Fprintf(Out, "  %s  %-24s %s\n", h.File.ID, h.File.Filename, h.Title)
	}
	return nil
}

type historyCmd struct{}

func (historyCmd) Name() string        { return "history" }
func (historyCmd) Description() string { return "Журнал происхождения ресурса" }
func (historyCmd) Usage() string       { return "history <resource-id>" }

func (historyCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	entries, total, err := app.Audit.QueryByResource(ctx, args[0], historyLimit, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "%d entries for %s\n", total, args[0])
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "FAILED"
		}
		actor := "system"
		if e.ActorID != nil {
			actor = fmt.Sprintf("user:%d", *e.ActorID)
		}
		fmt.Fprintf(Out, "  %s  %-8s %-12s %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, actor, status)
		if e.Reason != "" {
			fmt.Fprintf(Out, "  %s", e.Reason)
		}
		fmt.Fprintln(Out)
	}
	return nil
}

func init() {
	RegisterCmd(statsCmd{})
	RegisterCmd(searchCmd{})
	RegisterCmd(historyCmd{})
}
