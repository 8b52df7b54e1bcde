package main

import (
	"fmt"

	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, settings and link records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateSnapshot()
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)
}

func validateSnapshot() error {
	fmt.Println("□ Validating configuration...")
	rt, err := newApp()
	if err != nil {
		return err
	}
	fmt.Println("✓ Configuration is valid")

	fmt.Println("□ Validating snapshot...")
	_, in, err := rt.snapshot()
	if err != nil {
		return err
	}
	fmt.Println("✓ Snapshot is valid")

	fmt.Println("□ Negotiating links...")
	plan, err := rt.planner.Plan(reconcile.Scope{Kind: reconcile.ScopeAll}, in)
	if err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}

	failed := 0
	for _, lp := range plan.Links {
		switch {
		case lp.Closing:
			fmt.Printf("  - %s closing\n", lp.Link.Key())
		case lp.Failed():
			failed++
			fmt.Printf("  ✗ %s: %v\n", lp.Link.Key(), lp.Err)
		case lp.Ready():
			fmt.Printf("  ✓ %s (%s)\n", lp.Link.Key(), lp.Outcome.Request.Version)
		default:
			fmt.Printf("  □ %s not ready\n", lp.Link.Key())
		}
	}
	for _, c := range plan.Conflicts {
		fmt.Printf("  ✗ %s\n", c.Error())
	}

	if failed > 0 || len(plan.Conflicts) > 0 {
		return fmt.Errorf("validation failed: %d link(s) failed, %d static conflict(s)", failed, len(plan.Conflicts))
	}
	fmt.Println("✓ All validation passed")
	return nil
}
