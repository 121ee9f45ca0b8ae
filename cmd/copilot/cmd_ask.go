package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"retailcopilot/internal/types"
)

var (
	askHint string
	askID   string
	askOut  string
)

// askCmd answers a single question from the command line, or starts a small
// read-answer loop when no question is given.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question (interactive when no question is given)",
	Long: `Answers one natural language question and prints the response as JSON.

Without arguments, starts an interactive loop reading one question per line.

Examples:
  copilot ask "Top 3 products by revenue" --hint "list[{product:str, revenue:float}]"
  copilot ask "What was the AOV during winter 1997?" --hint float
  copilot ask`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askHint, "hint", "", "Output format hint (int, float, {field:type,...}, list[{...}])")
	askCmd.Flags().StringVar(&askID, "id", "", "Question id (generated when empty)")
	askCmd.Flags().StringVar(&askOut, "out", "", "Append the JSON response to this file as well as stdout")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}
	ag, cleanup, err := factory()
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) > 0 {
		q := types.Question{
			ID:         askID,
			Text:       strings.Join(args, " "),
			FormatHint: askHint,
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		return emitResponse(ag.Answer(q))
	}

	// Interactive loop: one question per line, empty line or EOF to stop.
	fmt.Println("retailcopilot interactive mode. Empty line to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("? ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			break
		}
		q := types.Question{ID: uuid.NewString(), Text: text, FormatHint: askHint}
		if err := emitResponse(ag.Answer(q)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// emitResponse prints one response as a JSON line and optionally appends it
// to the --out file.
func emitResponse(resp types.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	fmt.Println(string(data))

	if askOut == "" {
		return nil
	}
	f, err := os.OpenFile(askOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append response: %w", err)
	}
	return nil
}
