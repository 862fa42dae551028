package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <recommender-id>",
	Short: "Synchronise a recommender's remote dataset",
	Long: `Uploads the user's confirmed annotations to the dataset of an external
recommender and deletes remote documents that no longer exist locally.
Documents whose remote version is current are not sent again.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var classifiersCmd = &cobra.Command{
	Use:   "classifiers <recommender-id>",
	Short: "List the classifiers of a remote recommender service",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassifiers,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(classifiersCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}
	owner, err := dataOwner()
	if err != nil {
		return err
	}

	cmd.Printf("Synchronising %s for %s...\n", args[0], owner)
	report, err := syncService.SyncRecommender(cmd.Context(), args[0], owner)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	cmd.Printf("Dataset %s: %d uploaded, %d deleted, %d unchanged\n",
		report.Dataset, report.Uploaded, report.Deleted, report.Unchanged)
	if len(report.Failed) > 0 {
		for _, name := range report.Failed {
			cmd.Println(warningStyle.Render("  failed: " + name))
		}
		return fmt.Errorf("sync failed for %d documents", len(report.Failed))
	}
	cmd.Println(successStyle.Render("Dataset synchronised successfully."))
	return nil
}

func runClassifiers(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	infos, err := syncService.Classifiers(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("listing classifiers: %w", err)
	}
	if len(infos) == 0 {
		cmd.Println("No classifiers found.")
		return nil
	}
	for _, info := range infos {
		trainable := ""
		if info.Trainable {
			trainable = " trainable"
		}
		cmd.Printf("  %s  %s%s\n", labelStyle.Render(info.Name),
			mutedStyle.Render(fmt.Sprintf("%s %s", info.Status, info.Model)), trainable)
	}
	return nil
}
