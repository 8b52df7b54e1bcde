package main

import (
	"fmt"

	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/sourceplane/edgeroute/internal/render"
	"github.com/spf13/cobra"
)

var (
	endpointsSelf     bool
	endpointsUpstream string
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the urls of every served route",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEndpoints()
	},
}

func registerEndpointsCommand(root *cobra.Command) {
	root.AddCommand(endpointsCmd)

	endpointsCmd.Flags().BoolVar(&endpointsSelf, "self", true, "Include the proxy's own address")
	endpointsCmd.Flags().StringVar(&endpointsUpstream, "upstream-url", "", "Address of an upstream proxy exposing this one")
	endpointsCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text/json/yaml)")
}

func listEndpoints() error {
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
		return fmt.Errorf("failed to compute routes: %w", err)
	}

	selfURL := ""
	if plan.ExternalHost != "" {
		scheme := "http"
		if plan.Globals.TLSEnabled {
			scheme = "https"
		}
		selfURL = fmt.Sprintf("%s://%s/", scheme, plan.ExternalHost)
	}

	endpoints := render.ProxiedEndpoints(plan.Fragments(), render.EndpointOptions{
		Self:        endpointsSelf,
		SelfURL:     selfURL,
		UpstreamURL: endpointsUpstream,
	})

	if outputFormat != "text" {
		data, err := render.Render(endpoints, outputFormat)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	if len(endpoints) == 0 {
		fmt.Println("No endpoints served")
		return nil
	}
	fmt.Println("Proxied Endpoints:")
	for _, e := range endpoints {
		fmt.Printf("  %-30s %s\n", e.Name, e.URL)
	}
	return nil
}
