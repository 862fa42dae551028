package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

var (
	importPrune bool
	importForce bool
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a directory of text documents",
	Long: `Imports every .txt file below a directory into the project. A document
is named by its path relative to the directory.

A file a.ann.json next to a.txt holds the confirmed annotations of the
document; they are stored for --user and replace that user's annotations on
the layers the file lists. Unchanged documents are skipped unless --force
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the documents of a project",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the text of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

func init() {
	importCmd.Flags().BoolVar(&importPrune, "prune", false, "delete documents missing from the directory")
	importCmd.Flags().BoolVar(&importForce, "force", false, "re-import unchanged documents")
	documentsCmd.AddCommand(documentsShowCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if corpusService == nil {
		return errors.New("corpus service not configured")
	}
	if flagProject == "" {
		return errors.New("--project is required")
	}

	opts := driving.ImportOptions{
		ProjectID: flagProject,
		User:      flagOwner,
		Prune:     importPrune,
		Force:     importForce,
	}
	if opts.User == "" {
		opts.User = flagUser
	}

	report, err := corpusService.ImportDir(cmd.Context(), opts, args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	cmd.Printf("Imported %d documents (%d unchanged, %d removed, %d annotations)\n",
		report.Imported, report.Unchanged, report.Removed, report.Annotations)
	if len(report.Failed) > 0 {
		for _, name := range report.Failed {
			cmd.Println(warningStyle.Render("  failed: " + name))
		}
		return fmt.Errorf("import failed for %d files", len(report.Failed))
	}
	return nil
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	if corpusService == nil {
		return errors.New("corpus service not configured")
	}
	if flagProject == "" {
		return errors.New("--project is required")
	}

	docs, err := corpusService.Documents(cmd.Context(), flagProject)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		updated := ""
		if !docs[i].UpdatedAt.IsZero() {
			updated = docs[i].UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		cmd.Printf("  %-40s %s\n", docs[i].Name, mutedStyle.Render(updated))
	}
	return nil
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	if corpusService == nil {
		return errors.New("corpus service not configured")
	}
	if flagProject == "" {
		return errors.New("--project is required")
	}

	text, err := corpusService.DocumentText(cmd.Context(), flagProject, args[0])
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	cmd.Println(text)
	return nil
}
