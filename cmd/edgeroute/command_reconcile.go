package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourceplane/edgeroute/internal/loader"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/spf13/cobra"
)

var (
	notificationKind string
	notificationLink int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass for a notification",
	Long:  "Load the host snapshot, converge the proxy workload for one notification and write the published values back to the snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return reconcileOnce(ctx)
	},
}

func registerReconcileCommand(root *cobra.Command) {
	root.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&notificationKind, "notification", "n", string(model.Start), "Notification kind (start, link-changed, link-broken, config-changed, ...)")
	reconcileCmd.Flags().IntVarP(&notificationLink, "link", "l", 0, "Link id the notification refers to")
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print workload changes instead of applying them")
}

func reconcileOnce(ctx context.Context) error {
	fmt.Println("□ Loading configuration...")
	rt, err := newApp()
	if err != nil {
		return err
	}

	fmt.Println("□ Loading snapshot...")
	snap, in, err := rt.snapshot()
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("□ Dry-run mode enabled, the workload is left untouched")
	}
	n := model.Notification{Kind: model.NotificationKind(notificationKind), LinkID: notificationLink}
	fmt.Printf("□ Reconciling %s...\n", reconcile.Classify(n))
	rep, err := rt.driver(nil).Reconcile(ctx, n, in)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}

	if _, err := persist(snap, in); err != nil {
		return err
	}
	printReport(rep)
	return nil
}

// persist writes published values back to the snapshot when they changed
func persist(snap *loader.Snapshot, in *reconcile.Input) ([]byte, error) {
	if dryRun || !snap.Update(in) {
		return nil, nil
	}
	data, err := loader.Write(stateFile, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return data, nil
}

func printReport(rep *reconcile.Report) {
	if debugMode {
		for _, name := range rep.Written {
			fmt.Printf("  wrote %s\n", name)
		}
		for _, name := range rep.Removed {
			fmt.Printf("  removed %s\n", name)
		}
	}
	for _, lr := range rep.Links {
		mark := "✓"
		if lr.Failed {
			mark = "✗"
		}
		line := fmt.Sprintf("%s link %d (%s, %s): %s", mark, lr.LinkID, lr.App, lr.Style, lr.State)
		if lr.Err != nil {
			line += ": " + lr.Err.Error()
		}
		fmt.Println(line)
	}
	if rep.Restarted {
		fmt.Println("✓ Workload restarted with new static configuration")
	}
	fmt.Printf("✓ Pass %s complete: %d written, %d removed\n", rep.PassID, len(rep.Written), len(rep.Removed))
	fmt.Printf("Status: %s\n", rep.Status)
	for _, d := range rep.Status.Details {
		fmt.Printf("  - %s\n", d)
	}
}
