// Command gitscope is a read-only inspector for Git repositories: it
// answers "what does this object contain", "where do the refs point",
// and "what changed between these commits" without shelling out to git.
package main

import (
	"fmt"
	"os"

	"github.com/pkarpovich/gitscope/internal/cli"
	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("gitscope", fmt.Sprintf("%s (%s)", version, commit))
	app.Stderr = os.Stderr

	// repo is assigned lazily before the matched command runs; the
	// closures capture the pointer variable.
	var repo *gitcore.Repository
	openRepo := func() int {
		r, err := gitcore.Open(gf.repoPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		repo = r
		return 0
	}
	withRepo := func(run func(args []string) int) func([]string) int {
		return func(args []string) int {
			if code := openRepo(); code != 0 {
				return code
			}
			return run(args)
		}
	}

	app.Register(&cli.Command{
		Name:    "refs",
		Summary: "List branches, tags, remotes, and stash",
		Usage:   "gitscope refs [--kind localBranch|remoteBranch|tag|stash]",
		Run:     withRepo(func(args []string) int { return runRefs(repo, args, cw) }),
	})

	app.Register(&cli.Command{
		Name:    "head",
		Summary: "Show where HEAD points",
		Usage:   "gitscope head",
		Run:     withRepo(func(args []string) int { return runHead(repo, args, cw) }),
	})

	app.Register(&cli.Command{
		Name:    "log",
		Summary: "Show commit log",
		Usage:   "gitscope log [--oneline] [-n <count>] [<commit>]",
		Run:     withRepo(func(args []string) int { return runLog(repo, args, cw) }),
	})

	app.Register(&cli.Command{
		Name:    "cat-file",
		Summary: "Show object content, type, or size",
		Usage:   "gitscope cat-file (-t|-s|-p) <object>",
		Run:     withRepo(func(args []string) int { return runCatFile(repo, args) }),
	})

	app.Register(&cli.Command{
		Name:    "tree",
		Summary: "List every file reachable from a tree or commit",
		Usage:   "gitscope tree <object>",
		Run:     withRepo(func(args []string) int { return runTree(repo, args) }),
	})

	app.Register(&cli.Command{
		Name:    "diff",
		Summary: "Show file-level changes between two commits",
		Usage:   "gitscope diff <commit> [<parent>]",
		Run:     withRepo(func(args []string) int { return runDiff(repo, args, cw) }),
	})

	os.Exit(app.Run(args))
}
