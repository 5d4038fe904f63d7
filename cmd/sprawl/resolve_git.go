package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprawl-py/sprawl/internal/gitresolve"
)

func newResolveGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve-git <repo-url> [ref]",
		Short: "Resolve a git ref to its current commit SHA, via ls-remote",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 1 {
				ref = args[1]
			}

			sha, err := gitresolve.ResolveRef(cmd.Context(), nil, args[0], ref)
			if err != nil {
				return err
			}

			fmt.Println(sha)

			return nil
		},
	}

	return cmd
}
