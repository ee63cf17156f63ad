package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/termcolor"
)

// refKindOrder fixes the listing order; map iteration would shuffle it.
var refKindOrder = []gitcore.RefKind{
	gitcore.RefLocalBranch,
	gitcore.RefRemoteBranch,
	gitcore.RefTag,
	gitcore.RefStash,
}

func runRefs(repo *gitcore.Repository, args []string, cw *termcolor.Writer) int {
	var kindFilter string
	for i := 0; i < len(args); i++ {
		if args[i] == "--kind" && i+1 < len(args) {
			kindFilter = args[i+1]
			i++
		}
	}

	refs, err := repo.GetRefs(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	for _, kind := range refKindOrder {
		if kindFilter != "" && kind.String() != kindFilter {
			continue
		}
		for _, ref := range refs[kind] {
			name := ref.Name
			switch kind {
			case gitcore.RefLocalBranch:
				name = cw.Green(name)
			case gitcore.RefRemoteBranch:
				name = cw.Red(name)
			case gitcore.RefTag:
				name = cw.Yellow(name)
			}
			fmt.Printf("%s %s %s\n", ref.Hash.Short(), kind, name)
		}
	}
	return 0
}

func runHead(repo *gitcore.Repository, _ []string, cw *termcolor.Writer) int {
	ctx := context.Background()

	hash, found, err := repo.GetHEAD(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if !found {
		fmt.Println("HEAD is unborn")
		return 0
	}

	if branch, ok := repo.GetHEADBranch(ctx); ok {
		fmt.Printf("%s %s\n", hash.Short(), cw.Green(branch))
	} else {
		fmt.Printf("%s %s\n", hash.Short(), cw.Yellow("(detached)"))
	}
	return 0
}
