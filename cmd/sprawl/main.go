package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/sprawl-py/sprawl/internal/launcher"
)

var version = "0.0.0"

func main() {
	if target, ok := moonlightTarget(); ok {
		os.Exit(runMoonlight(target, os.Args[1:]))
	}

	rest, plusVersion, err := launcher.ParsePlusArg(os.Args[1:])
	if err != nil {
		printCausalChain(err)
		os.Exit(1)
	}

	if plusVersion != nil {
		if err := runRun(context.Background(), projectFlags{}, plusVersion, rest); err != nil {
			printCausalChain(err)
			os.Exit(1)
		}

		return
	}

	if err := run(); err != nil {
		printCausalChain(err)
		os.Exit(1)
	}
}

// moonlightTarget reports whether this process was invoked under a
// basename other than its own: "python", a version-pinned "python3.11",
// or an installed console-script name symlinked into the
// script-forwarding directory. In that case it skips cobra's
// subcommand tree and re-enters directly as that program (spec.md
// §4.7's forwarding directory and §3's secondary mode).
func moonlightTarget() (launcher.MoonlightTarget, bool) {
	if len(os.Args) == 0 {
		return launcher.MoonlightTarget{}, false
	}

	basename := strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
	if basename == "sprawl" {
		return launcher.MoonlightTarget{}, false
	}

	return launcher.ClassifyBasename(basename), true
}

func runMoonlight(target launcher.MoonlightTarget, args []string) int {
	ctx := context.Background()

	var err error

	if target.IsPython {
		err = runRun(ctx, projectFlags{}, target.Version, args)
	} else {
		err = runExec(ctx, projectFlags{}, target.Script, args)
	}

	if err != nil {
		printCausalChain(err)

		return 1
	}

	return 0
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "sprawl",
		Short:         "An alternative Python package manager and runtime launcher",
		Long:          "sprawl resolves a project's dependencies into a content-addressed store and runs Python programs against it without a traditional virtual environment.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newInstallCmd(),
		newListCmd(),
		newVerifyCmd(),
		newRunCmd(),
		newExecCmd(),
		newResolveGitCmd(),
	)

	return rootCmd.Execute()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// printCausalChain prints err's own message, then each wrapped cause
// beneath it on its own line, innermost last, per spec.md §7's "the
// process prints the full causal chain, one cause per line" exit
// behavior. It peels fmt.Errorf/xerrors.Errorf's %w chain one layer at
// a time, stripping each layer's own trailing ": <next cause>" suffix
// so every line shows only what that layer itself added.
func printCausalChain(err error) {
	for err != nil {
		next := xerrors.Unwrap(err)

		msg := err.Error()
		if next != nil {
			msg = strings.TrimSuffix(msg, ": "+next.Error())
		}

		fmt.Fprintf(os.Stderr, "error: %s\n", msg)

		err = next
	}
}
