package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ArchiveKeeper/internal/cli/bootstrap"
)

// Opener открывает приложение; вызывается только когда команда действительно будет выполнена.
type Opener func() (*bootstrap.App, func() error, error)

// Dispatch — единая точка входа CLI. Печатает справку и возвращает код выхода:
// 0 — успех, 1 — ошибка выполнения, 2 — ошибка использования.
func Dispatch(ctx context.Context, open Opener, args []string) int {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Fprint(Out, FormatGlobalUsage())
			return 0
		}
	}

	if len(args) == 0 {
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}

	name := strings.ToLower(args[0])
	if name == "help" {
		if len(args) == 1 {
			fmt.Fprint(Out, FormatGlobalUsage())
			return 0
		}
		if c, ok := Get(args[1]); ok {
			fmt.Fprintf(Out, "Usage: %s\n", c.Usage())
			return 0
		}
		fmt.Fprintf(Out, "Unknown command: %s\n\n", args[1])
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}

	c, ok := Get(name)
	if !ok {
		fmt.Fprintf(Out, "Unknown command: %s\n\n", name)
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}

	app, cleanup, err := open()
	if err != nil {
		fmt.Fprintf(Out, "startup error: %v\n", err)
		return 1
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			fmt.Fprintf(Out, "shutdown error: %v\n", cerr)
		}
	}()

	err = c.Run(ctx, app, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		fmt.Fprintf(Out, "Usage: %s\n", c.Usage())
		return 2
	default:
		fmt.Fprintf(Out, "%s error: %v\n", name, err)
		return 1
	}
}
