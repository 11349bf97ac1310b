// Package commands — подкоманды административной утилиты archivectl.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"ArchiveKeeper/internal/cli/bootstrap"
)

// ErrUsage возвращается командой при неверных аргументах: диспетчер покажет usage.
var ErrUsage = errors.New("usage")

// Command — подкоманда CLI.
type Command interface {
	// Name — имя команды, например "verify".
	Name() string
	// Description — короткое описание для справки.
	Description() string
	// Usage — строка использования, например "verify <file-id>".
	Usage() string
	// Run выполняет команду; args без имени команды.
	Run(ctx context.Context, app *bootstrap.App, args []string) error
}

var registry = map[string]Command{}

// Out — общий writer для вывода CLI, в тестах переназначается.
var Out io.Writer = os.Stdout

// RegisterCmd добавляет команду в реестр, вызывается из init() каждой команды.
func RegisterCmd(cmd Command) {
	registry[cmd.Name()] = cmd
}

func Get(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

// List возвращает команды, отсортированные по имени.
func List() []Command {
	list := make([]Command, 0, len(registry))
	for _, c := range registry {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// FormatGlobalUsage собирает общую справку.
func FormatGlobalUsage() string {
	lines := []string{
		"ArchiveKeeper admin CLI",
		"",
		"Usage:",
		"  archivectl [-d <dsn>] [-storage-root <dir>] <command> [args]",
		"",
		"Commands:",
	}
	for _, c := range List() {
		lines = append(lines, fmt.Sprintf("  %-32s %s", c.Usage(), c.Description()))
	}
	return strings.Join(lines, "\n") + "\n"
}
