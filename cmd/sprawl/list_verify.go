package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprawl-py/sprawl/internal/wheel"
)

func newListCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every package materialized in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.projectDir, "project", "", "project root override (default: working directory)")

	return cmd
}

func runList(ctx context.Context, flags projectFlags) error {
	logger := newLogger(false)

	rt, err := loadRuntime(ctx, flags, nil, logger)
	if err != nil {
		return err
	}

	entries, err := rt.store.Walk()
	if err != nil {
		return fmt.Errorf("walking store: %w", err)
	}

	for _, e := range entries {
		fmt.Printf("%s %s %s\n", e.Name, e.UniqueVersion, e.Tag)
	}

	return nil
}

func newVerifyCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every store entry's RECORD hashes against its on-disk files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.projectDir, "project", "", "project root override (default: working directory)")

	return cmd
}

func runVerify(ctx context.Context, flags projectFlags) error {
	logger := newLogger(false)

	rt, err := loadRuntime(ctx, flags, nil, logger)
	if err != nil {
		return err
	}

	entries, err := rt.store.Walk()
	if err != nil {
		return fmt.Errorf("walking store: %w", err)
	}

	var failures int

	for _, e := range entries {
		if err := verifyInstalled(e.Path); err != nil {
			fmt.Printf("FAIL %s %s %s: %v\n", e.Name, e.UniqueVersion, e.Tag, err)

			failures++

			continue
		}

		fmt.Printf("OK   %s %s %s\n", e.Name, e.UniqueVersion, e.Tag)
	}

	if failures > 0 {
		return fmt.Errorf("%d store entries failed verification", failures)
	}

	return nil
}

// verifyInstalled recomputes the SHA256 of every file a package's own
// RECORD names and compares it against the recorded digest, reusing the
// same hashing routine the installer verified against at install time.
func verifyInstalled(dir string) error {
	entries, err := wheel.ReadRecord(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Hash == "" {
			continue // meta-files carry no hash, per RECORD's format
		}

		if err := wheel.VerifyRecordEntry(dir, e); err != nil {
			return err
		}
	}

	return nil
}
