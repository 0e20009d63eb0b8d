package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var actAsClear bool

var actAsCmd = &cobra.Command{
	Use:   "act-as [username]",
	Short: "Select a user to queue downloads on behalf of (admins only)",
	Long: `Selects a delegate for subsequent download commands. While a
delegate is set, downloads require an extra confirmation before they are
issued in that user's name. Selecting yourself clears the delegation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActAs,
}

func init() {
	actAsCmd.Flags().BoolVar(&actAsClear, "clear", false, "Clear the current delegation")
	rootCmd.AddCommand(actAsCmd)
}

func runActAs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if actAsClear {
		if err := a.state.ClearActingAs(); err != nil {
			return fmt.Errorf("failed to clear delegation: %w", err)
		}
		fmt.Println("Delegation cleared.")
		return nil
	}

	if len(args) == 0 {
		if current := a.state.ActingAs(); current != nil {
			fmt.Printf("Acting as %s (%s)\n", current.DisplayName, current.Username)
		} else {
			fmt.Println("No delegation set.")
		}
		return nil
	}

	p := a.policies.Refresh(ctx, true)
	if p == nil || !p.IsAdmin {
		return fmt.Errorf("acting on behalf of another user requires admin rights")
	}

	coord, err := a.newCoordinator(ctx, newConfirmer())
	if err != nil {
		return err
	}

	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	target := args[0]
	for _, user := range users {
		if strings.EqualFold(user.Username, target) {
			if err := coord.SetDelegate(user); err != nil {
				return err
			}
			if coord.Delegate() == nil {
				fmt.Println("That is you; delegation cleared.")
			} else {
				fmt.Printf("Now acting as %s (%s)\n", user.DisplayName, user.Username)
			}
			return nil
		}
	}
	return fmt.Errorf("no user named %q found", target)
}
