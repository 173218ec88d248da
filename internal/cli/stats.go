package cli

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
)

var statsProjectID string

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsProjectID, "project", "", "scope counts to a project id")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show request counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		counts, err := db.NewApprovalRepository(database).CountByStatus(ctx, statsProjectID)
		if err != nil {
			return err
		}

		statuses := []models.ApprovalStatus{
			models.ApprovalStatusPending,
			models.ApprovalStatusApproved,
			models.ApprovalStatusRejected,
			models.ApprovalStatusCancelled,
			models.ApprovalStatusRevision,
		}
		rows := make([][]string, 0, len(statuses))
		for _, status := range statuses {
			rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
		}
		return writeTable(os.Stdout, []string{"STATUS", "COUNT"}, rows)
	},
}
