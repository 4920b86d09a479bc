package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Inspect and control scopes on a running daemon",
}

var scopesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every scope the daemon currently tracks",
	RunE:  runScopesList,
}

var (
	spawnName   string
	spawnParent string
)

var scopesSpawnCmd = &cobra.Command{
	Use:   "spawn <logical-name> [more-logical-names...]",
	Short: "Spawn a new scope running the given logical actors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScopesSpawn,
}

var scopesExitCmd = &cobra.Command{
	Use:   "exit [scope]",
	Short: "Request Exit for a scope (root if omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScopesExit,
}

func init() {
	scopesSpawnCmd.Flags().StringVar(&spawnName, "name", "", "Human-readable name for the new scope")
	scopesSpawnCmd.Flags().StringVar(&spawnParent, "parent", "", "Parent scope (root if omitted)")

	scopesCmd.AddCommand(scopesListCmd)
	scopesCmd.AddCommand(scopesSpawnCmd)
	scopesCmd.AddCommand(scopesExitCmd)
}

func runScopesList(cmd *cobra.Command, args []string) error {
	var snapshot struct {
		Scopes map[string][]string `json:"scopes"`
	}
	if err := getJSON("/v1/scopes", &snapshot); err != nil {
		return err
	}

	for scope, actors := range snapshot.Scopes {
		fmt.Printf("%s: %s\n", scope, strings.Join(actors, ", "))
	}

	return nil
}

func runScopesSpawn(cmd *cobra.Command, args []string) error {
	req := map[string]any{
		"logical_names": args,
		"name":          spawnName,
		"parent":        spawnParent,
	}

	var result struct {
		Scope string `json:"scope"`
	}
	if err := postJSON("/v1/scopes/spawn", req, &result); err != nil {
		return err
	}

	fmt.Println(result.Scope)
	return nil
}

func runScopesExit(cmd *cobra.Command, args []string) error {
	scope := ""
	if len(args) == 1 {
		scope = args[0]
	}

	req := map[string]any{"scope": scope}
	if err := postJSON("/v1/scopes/exit", req, nil); err != nil {
		return err
	}

	fmt.Println("exit requested")
	return nil
}
