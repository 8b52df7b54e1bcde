package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/sourceplane/edgeroute/internal/render"
	"github.com/spf13/cobra"
)

var renderView string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the proxy configuration without touching the workload",
	Long:  "Compile every link of the snapshot and print the routes tree, the merged static configuration or the dynamic fragments.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderConfig()
	},
}

func registerRenderCommand(root *cobra.Command) {
	root.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderView, "view", "v", "routes", "What to render (routes/static/dynamic)")
	renderCmd.Flags().StringVarP(&outputFormat, "format", "f", "yaml", "Output format (json/yaml)")
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to this file instead of stdout")
}

func renderConfig() error {
	rt, err := newApp()
	if err != nil {
		return err
	}
	_, in, err := rt.snapshot()
	if err != nil {
		return err
	}
	plan, err := rt.planner.Plan(reconcile.Scope{Kind: reconcile.ScopeAll}, in)
	if err != nil {
		return err
	}

	var data []byte
	switch renderView {
	case "routes":
		data = []byte(render.ViewRoutes(plan.Fragments()))
	case "static":
		data, err = render.Render(plan.Static, outputFormat)
	case "dynamic":
		docs := map[string]any{}
		for _, lp := range plan.Links {
			if lp.Ready() {
				docs[lp.File] = lp.Fragment.Document()
			}
		}
		data, err = render.Render(docs, outputFormat)
	default:
		return fmt.Errorf("unknown view: %s", renderView)
	}
	if err != nil {
		return err
	}

	if outputFile == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("✓ Rendered %s to %s\n", renderView, outputFile)
	return nil
}
