package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkarpovich/gitscope/internal/gitcore"
	"github.com/pkarpovich/gitscope/internal/termcolor"
)

func runLog(repo *gitcore.Repository, args []string, cw *termcolor.Writer) int {
	oneline := false
	maxCount := 0
	rev := "HEAD"

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--oneline":
			oneline = true
		case arg == "-n" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid count %q\n", args[i+1])
				return 1
			}
			maxCount = n
			i++
		case strings.HasPrefix(arg, "-n"):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "-n"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid count %q\n", arg)
				return 1
			}
			maxCount = n
		default:
			rev = arg
		}
	}

	from, err := resolveRevision(repo, rev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	commits, err := repo.CommitLog(context.Background(), from, maxCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	for i, c := range commits {
		if oneline {
			fmt.Printf("%s %s\n", cw.Yellow(c.ID.Short()), c.Title)
			continue
		}

		fmt.Printf("%s %s\n", cw.Yellow("commit"), c.ID)
		fmt.Printf("Author: %s <%s>\n", c.Author.Name, c.Author.Email)
		fmt.Printf("Date:   %s\n", c.Author.Time().Format("Mon Jan 2 15:04:05 2006 -0700"))
		fmt.Printf("\n    %s\n", c.Title)
		if c.Body != "" {
			for _, line := range strings.Split(c.Body, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
		if i < len(commits)-1 {
			fmt.Println()
		}
	}
	return 0
}
