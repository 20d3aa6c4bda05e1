package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/proxyshape/internal/presentation/graph"
	"github.com/aretw0/proxyshape/internal/presentation/tui"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the selection and transform references of the proxy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		refs, selected := w.Proxy.References(), w.Proxy.Selected()
		out := cmd.OutOrStdout()

		asJSON, _ := cmd.Flags().GetBool("json")
		pretty, _ := cmd.Flags().GetBool("pretty")
		switch {
		case asJSON:
			data, err := json.MarshalIndent(map[string]any{
				"proxy_id":   w.Proxy.ID(),
				"selected":   selected,
				"references": refs,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		case pretty:
			tui.PrintBanner(out)
			rendered, err := tui.NewRenderer()(tui.ReferencesMarkdown(w.Proxy.ID(), refs, selected))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		default:
			profile := termenv.Ascii
			if tui.IsTerminal(os.Stdout) {
				profile = termenv.ColorProfile()
			}
			fmt.Fprint(out, tui.ReferencesText(refs, selected, profile))
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the shadow hierarchy as a Mermaid diagram",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		overlay := &graph.Overlay{Selected: w.Proxy.Selected()}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(w.Proxy.ID(), w.Proxy.References(), overlay))
		return nil
	},
}

var payloadsCmd = &cobra.Command{
	Use:   "payloads [root]",
	Short: "List prims carrying a payload",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := domain.RootPath
		if len(args) == 1 {
			p, err := domain.ParsePath(args[0])
			if err != nil {
				return err
			}
			root = p
		}
		rawFilter, _ := cmd.Flags().GetString("filter")
		filter, err := domain.ParsePayloadFilter(rawFilter)
		if err != nil {
			return err
		}

		w, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		for _, p := range w.Proxy.FindPayloads(root, filter) {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(payloadsCmd)
	inspectCmd.Flags().Bool("json", false, "Print as JSON")
	inspectCmd.Flags().Bool("pretty", false, "Render as markdown in the terminal")
	payloadsCmd.Flags().String("filter", "loadable", "Payload state: loadable, loaded or unloaded")
}
