package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/termcolor"
)

type globalFlags struct {
	colorMode termcolor.ColorMode
	repoPath  string
}

// parseGlobalFlags extracts --color, --no-color, and -C <path> from
// anywhere in args, returning the remaining (filtered) arguments.
func parseGlobalFlags(args []string) (globalFlags, []string) {
	gf := globalFlags{colorMode: termcolor.ColorAuto, repoPath: "."}
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--no-color":
			gf.colorMode = termcolor.ColorNever

		case arg == "--color" && i+1 < len(args):
			mode, err := termcolor.ParseColorMode(args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "gitscope: %v\n", err)
				os.Exit(1)
			}
			gf.colorMode = mode
			i++

		case strings.HasPrefix(arg, "--color="):
			mode, err := termcolor.ParseColorMode(strings.TrimPrefix(arg, "--color="))
			if err != nil {
				fmt.Fprintf(os.Stderr, "gitscope: %v\n", err)
				os.Exit(1)
			}
			gf.colorMode = mode

		case arg == "-C" && i+1 < len(args):
			gf.repoPath = args[i+1]
			i++

		default:
			remaining = append(remaining, arg)
		}
	}

	return gf, remaining
}

// resolveRevision turns a user-supplied revision into a hash: "HEAD", a
// full 40-hex hash, or a short ref name tried against heads, tags, and
// remotes in that order.
func resolveRevision(repo *gitcore.Repository, rev string) (gitcore.Hash, error) {
	ctx := context.Background()

	if rev == "HEAD" {
		hash, found, err := repo.GetHEAD(ctx)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("HEAD does not point at a commit")
		}
		return hash, nil
	}

	if hash, err := gitcore.NewHash(rev); err == nil {
		return hash, nil
	}

	for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/remotes/"} {
		if hash, found := repo.ResolveReference(ctx, prefix+rev); found {
			return hash, nil
		}
	}

	return "", fmt.Errorf("unknown revision: %q", rev)
}
