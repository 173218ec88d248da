package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbakke/signoff/internal/auth"
	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
)

var (
	usersAddName  string
	usersAddEmail string
	keyIssueName  string
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersKeyCmd)

	usersAddCmd.Flags().StringVar(&usersAddName, "name", "", "display name")
	usersAddCmd.Flags().StringVar(&usersAddEmail, "email", "", "email address")
	_ = usersAddCmd.MarkFlagRequired("name")
	_ = usersAddCmd.MarkFlagRequired("email")

	usersKeyCmd.Flags().StringVar(&keyIssueName, "name", "cli", "key name")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		user := &models.User{Name: usersAddName, Email: usersAddEmail}
		if err := db.NewUserRepository(database).Create(ctx, user); err != nil {
			return fmt.Errorf("failed to add user: %w", err)
		}

		fmt.Println(user.ID)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		users, err := db.NewUserRepository(database).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		rows := make([][]string, 0, len(users))
		for _, user := range users {
			rows = append(rows, []string{user.ID, user.Name, user.Email, user.CreatedAt.Format(time.RFC3339)})
		}
		return writeTable(os.Stdout, []string{"ID", "NAME", "EMAIL", "CREATED"}, rows)
	},
}

var usersKeyCmd = &cobra.Command{
	Use:   "issue-key <user id>",
	Short: "Issue an API key for a user",
	Long:  "Issue an API key for a user. The plaintext key is printed once and cannot be recovered.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		manager := auth.NewAPIKeyManager(db.NewAPIKeyRepository(database), db.NewUserRepository(database))
		key, err := manager.Issue(ctx, args[0], keyIssueName)
		if err != nil {
			return fmt.Errorf("failed to issue key: %w", err)
		}

		fmt.Println(key)
		return nil
	},
}
