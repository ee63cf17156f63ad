package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/termcolor"
)

func runDiff(repo *gitcore.Repository, args []string, cw *termcolor.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: gitscope diff <commit> [<parent>]")
		return 1
	}

	ctx := context.Background()

	commitHash, err := resolveRevision(repo, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	var parentHash gitcore.Hash
	if len(args) == 2 {
		parentHash, err = resolveRevision(repo, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
	} else {
		// Default to the first parent, like log UIs do.
		commit, err := repo.GetCommit(ctx, commitHash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		if len(commit.Parents) > 0 {
			parentHash = commit.Parents[0]
		}
	}

	diff, err := repo.DiffCommits(ctx, commitHash, parentHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	paths := make([]string, 0, len(diff))
	for path := range diff {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		cf := diff[path]
		switch cf.Change.Kind {
		case gitcore.ChangeAdded:
			fmt.Printf("%s  %s\n", cw.Green("A"), path)
		case gitcore.ChangeModified:
			fmt.Printf("%s  %s\n", cw.Yellow("M"), path)
		case gitcore.ChangeDeleted:
			fmt.Printf("%s  %s\n", cw.Red("D"), path)
		case gitcore.ChangeRenamed:
			fmt.Printf("%s  %s -> %s\n", cw.Magenta("R"), cf.Change.FromPath, path)
		}
	}
	return 0
}
