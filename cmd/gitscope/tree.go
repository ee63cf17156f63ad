package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/pkarpovich/gitscope/internal/gitcore"
)

func runTree(repo *gitcore.Repository, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: gitscope tree <object>")
		return 1
	}

	hash, err := resolveRevision(repo, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	ctx := context.Background()

	// A commit argument means its root tree.
	if typeName, _, err := repo.Objects().GetObjectInfo(ctx, hash); err == nil && typeName == "commit" {
		commit, err := repo.GetCommit(ctx, hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		hash = commit.Tree
	}

	snap, err := repo.GetTreePaths(ctx, hash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	paths := make([]string, 0, len(snap))
	for path := range snap {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Printf("%s %s\n", snap[path].Short(), path)
	}
	return 0
}
