// Package cli implements a lightweight subcommand dispatcher for the
// gitscope binary.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
)

// Command describes a single CLI subcommand.
type Command struct {
	Name    string
	Summary string // one-line description for the help listing
	Usage   string // full usage string for per-command help
	Run     func(args []string) int
}

// App dispatches subcommands by name.
type App struct {
	Name     string
	Version  string
	Stderr   io.Writer
	commands map[string]*Command
	order    []string
}

// NewApp creates an App with the given name and version.
func NewApp(name, version string) *App {
	return &App{
		Name:     name,
		Version:  version,
		Stderr:   os.Stderr,
		commands: make(map[string]*Command),
	}
}

// Register adds a command. It panics on a duplicate name; registration
// happens once at startup and a duplicate is a programming error.
func (a *App) Register(cmd *Command) {
	if _, exists := a.commands[cmd.Name]; exists {
		panic(fmt.Sprintf("cli: duplicate command %q", cmd.Name))
	}
	a.commands[cmd.Name] = cmd
	a.order = append(a.order, cmd.Name)
}

// Lookup returns the named command, or nil.
func (a *App) Lookup(name string) *Command {
	return a.commands[name]
}

// Run dispatches args. Empty args or "help" print the command listing;
// -h/--help anywhere in a subcommand's args print its usage.
func (a *App) Run(args []string) int {
	if len(args) == 0 {
		a.printHelp()
		return 1
	}

	name := args[0]
	subArgs := args[1:]

	switch name {
	case "help", "-h", "--help":
		if len(subArgs) > 0 {
			return a.printCommandHelp(subArgs[0])
		}
		a.printHelp()
		return 0
	case "version", "--version":
		fmt.Fprintf(a.Stderr, "%s %s\n", a.Name, a.Version)
		return 0
	}

	cmd := a.Lookup(name)
	if cmd == nil {
		fmt.Fprintf(a.Stderr, "%s: %q is not a command\n", a.Name, name)
		fmt.Fprintf(a.Stderr, "Run '%s help' for a list of commands.\n", a.Name)
		return 1
	}

	for _, arg := range subArgs {
		if arg == "-h" || arg == "--help" {
			return a.printCommandHelp(name)
		}
	}
	return cmd.Run(subArgs)
}

func (a *App) printHelp() {
	fmt.Fprintf(a.Stderr, "usage: %s <command> [arguments]\n\nCommands:\n", a.Name)

	names := make([]string, len(a.order))
	copy(names, a.order)
	sort.Strings(names)

	tw := tabwriter.NewWriter(a.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, a.commands[name].Summary)
	}
	tw.Flush()
}

func (a *App) printCommandHelp(name string) int {
	cmd := a.Lookup(name)
	if cmd == nil {
		fmt.Fprintf(a.Stderr, "%s help: unknown command %q\n", a.Name, name)
		return 1
	}
	fmt.Fprintf(a.Stderr, "usage: %s\n\n%s\n", cmd.Usage, cmd.Summary)
	return 0
}
