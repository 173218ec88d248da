package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbakke/signoff/internal/config"
	"github.com/mbakke/signoff/internal/db"
)

func init() {
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextClearCmd)
}

var useCmd = &cobra.Command{
	Use:   "use <user id>",
	Short: "Set the default acting user",
	Long:  "Set the default acting user for mutations, so --as is not needed on every command.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		user, err := db.NewUserRepository(database).Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve user: %w", err)
		}

		store := config.DefaultContextStore()
		saved, err := store.Load()
		if err != nil {
			return err
		}
		saved.SetUser(user.ID, user.Name)
		if err := store.Save(saved); err != nil {
			return err
		}

		fmt.Printf("acting as %s (%s)\n", user.Name, user.ID)
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the current CLI context",
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := config.DefaultContextStore().Load()
		if err != nil {
			return err
		}
		fmt.Println(saved.String())
		return nil
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the saved CLI context",
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.DefaultContextStore().Clear()
	},
}
