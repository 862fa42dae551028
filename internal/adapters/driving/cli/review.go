package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

var (
	reviewRetrain  bool
	reviewDocument string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review suggestions interactively",
	Long: `Runs the project's recommenders and starts an interactive session to
accept or reject the offered suggestions.

Commands:
  list               list the offered suggestions
  show <n>           show suggestion n in its document with alternatives
  accept <n>         accept suggestion n
  reject <n> [why]   reject suggestion n
  predict            run the recommenders again
  switch             check whether a newer generation is active
  quit               leave the session`,
	Args: cobra.NoArgs,
}

func init() {
	// Assigned here rather than in the literal to break the initialization
	// cycle reviewCmd -> runReview -> dispatch -> reviewCmd.
	reviewCmd.RunE = runReview
	reviewCmd.Flags().BoolVar(&reviewRetrain, "retrain", false, "drop trained models before predicting")
	reviewCmd.Flags().StringVarP(&reviewDocument, "document", "d", "", "only review suggestions of this document")
	rootCmd.AddCommand(reviewCmd)
}

// reviewSession holds the numbered list the user refers to.
type reviewSession struct {
	cmd   *cobra.Command
	key   domain.PredictionKey
	preds *domain.Predictions
	shown []domain.Suggestion
}

func runReview(cmd *cobra.Command, _ []string) error {
	key, err := predictionKey()
	if err != nil {
		return err
	}

	preds, err := predict(cmd, key, reviewRetrain)
	if err != nil {
		return err
	}
	// The generation is shown now; later switches report newer ones only.
	suggestionService.SwitchPredictions(key)

	session := &reviewSession{cmd: cmd, key: key, preds: preds}
	session.list()
	if isInteractive() {
		cmd.Println(mutedStyle.Render("Type 'help' for commands."))
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for {
		cmd.Print("review> ")
		line, ok := readLine(reader)
		if !ok {
			cmd.Println()
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if quit := session.dispatch(fields); quit {
			return nil
		}
	}
}

func (r *reviewSession) dispatch(fields []string) bool {
	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "l", "list", "ls":
		r.list()
	case "s", "show":
		r.withSuggestion(fields, r.show)
	case "a", "accept":
		r.withSuggestion(fields, r.accept)
	case "r", "reject":
		reason := strings.Join(fields[min(2, len(fields)):], " ")
		r.withSuggestion(fields, func(s *domain.Suggestion) { r.reject(s, reason) })
	case "p", "predict":
		preds, err := predict(r.cmd, r.key, false)
		if err != nil {
			r.cmd.Println(errorStyle.Render(err.Error()))
			return false
		}
		suggestionService.SwitchPredictions(r.key)
		r.preds = preds
		r.list()
	case "switch":
		r.switchPredictions()
	case "h", "help", "?":
		r.cmd.Println(reviewCmd.Long)
	default:
		r.cmd.Println(warningStyle.Render(fmt.Sprintf("unknown command %q, type 'help'", fields[0])))
	}
	return false
}

func (r *reviewSession) list() {
	r.shown = collectSuggestions(r.preds, reviewDocument, false)
	r.cmd.Println(titleStyle.Render(fmt.Sprintf("Generation %d", r.preds.Generation)) +
		mutedStyle.Render(fmt.Sprintf(" (%d offered)", len(r.shown))))
	printSuggestions(r.cmd, r.preds, r.shown)
}

// withSuggestion resolves the number in fields[1] against the last listing.
func (r *reviewSession) withSuggestion(fields []string, fn func(s *domain.Suggestion)) {
	if len(fields) < 2 {
		r.cmd.Println(warningStyle.Render("missing suggestion number"))
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(r.shown) {
		r.cmd.Println(warningStyle.Render(fmt.Sprintf("no suggestion %s, type 'list'", fields[1])))
		return
	}
	fn(&r.shown[n-1])
}

func (r *reviewSession) accept(s *domain.Suggestion) {
	result, err := suggestionService.Accept(r.cmd.Context(), r.key, r.preds.VID(s))
	if err != nil {
		r.cmd.Println(errorStyle.Render(err.Error()))
		return
	}
	msg := fmt.Sprintf("Accepted %s=%s at %s in %s", s.Feature, s.Label, result.Anchor, result.Document)
	if result.AnnotationRef != "" {
		msg += " as " + result.AnnotationRef
	}
	r.cmd.Println(successStyle.Render(msg))
}

func (r *reviewSession) reject(s *domain.Suggestion, reason string) {
	result, err := suggestionService.Reject(r.cmd.Context(), r.key, r.preds.VID(s), reason)
	if err != nil {
		r.cmd.Println(errorStyle.Render(err.Error()))
		return
	}
	r.cmd.Println(successStyle.Render(fmt.Sprintf("Rejected %s=%s at %s in %s", s.Feature, s.Label, result.Anchor, result.Document)))
}

func (r *reviewSession) show(s *domain.Suggestion) {
	vid := r.preds.VID(s)
	result, err := suggestionService.ScrollTo(r.cmd.Context(), r.key, vid)
	if err != nil {
		r.cmd.Println(errorStyle.Render(err.Error()))
		return
	}

	r.cmd.Println(titleStyle.Render(result.Document) + " " + mutedStyle.Render(vid))
	if corpusService != nil {
		if text, err := corpusService.DocumentText(r.cmd.Context(), r.key.ProjectID, result.Document); err == nil {
			r.cmd.Println("  " + contextSnippet(text, result.Anchor, terminalWidth()-4))
			if s.Kind == domain.KindRelation {
				r.cmd.Println("  " + contextSnippet(text, s.Target, terminalWidth()-4))
			}
		}
	}
	if s.Explanation != "" {
		r.cmd.Println("  " + mutedStyle.Render(s.Explanation))
	}

	details, ok := suggestionService.LookupDetails(r.key, vid)
	if !ok {
		return
	}
	for _, d := range details {
		r.cmd.Printf("  %s  %s=%s  %s\n", formatScore(d.Score), s.Feature, labelStyle.Render(d.Label),
			mutedStyle.Render(d.RecommenderName))
	}
}

func (r *reviewSession) switchPredictions() {
	if !suggestionService.SwitchPredictions(r.key) {
		r.cmd.Println(mutedStyle.Render("Suggestions are up to date."))
		return
	}
	r.preds = suggestionService.GetPredictions(r.key)
	r.cmd.Println(successStyle.Render(fmt.Sprintf("Switched to generation %d.", r.preds.Generation)))
	r.list()
}

// readLine returns the next trimmed line; ok is false at end of input.
func readLine(reader *bufio.Reader) (string, bool) {
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", false
	}
	return strings.TrimSpace(input), true
}
