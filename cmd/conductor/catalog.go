// Catalog rendering for the CLI.
package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/opsmesh/conductor/internal/registry"
)

// Catalog listing styles.
var (
	catalogTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")) // White bold - headers

	agentIDStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue - agent ids

	endpointStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - endpoints

	capabilityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta - capability tags
)

// Run prints the agent catalog.
func (cmd *CatalogCmd) Run() error {
	reg := registry.New(cmd.Catalog)
	agents, err := reg.Load()
	if err != nil {
		return err
	}

	fmt.Println(catalogTitleStyle.Render(fmt.Sprintf("Agent catalog (%d agents)", len(agents))))
	for _, a := range agents {
		name := a.DisplayName
		if name == "" {
			name = a.ID
		}
		fmt.Printf("  %s  %s\n", agentIDStyle.Render(a.ID), endpointStyle.Render(a.Endpoint))
		if name != a.ID {
			fmt.Printf("    %s\n", name)
		}
		if len(a.Capabilities) > 0 {
			fmt.Printf("    %s\n", capabilityStyle.Render(strings.Join(a.Capabilities, ", ")))
		}
	}
	return nil
}
