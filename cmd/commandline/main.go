package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fieldvoice/reporter/pkg/sdk"
	"github.com/fieldvoice/reporter/pkg/utils"
)

func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	baseURL := cfg.GetWithDefault("BACKEND_BASE_URL", "http://localhost:8080")
	client := sdk.NewClient(baseURL, cfg.Get("API_KEY"))

	ctx := context.Background()
	if err := runShell(ctx, client, cfg); err != nil {
		log.Fatalf("[COMMANDLINE]: %v", err)
	}
}

// runShell reads commands from stdin and drives the reporter API
func runShell(ctx context.Context, client *sdk.Client, cfg *utils.Config) error {
	fmt.Println("Field reporter started. Commands: start, end, progress, status, outcome, report <id>, exit.")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}

		if err := runCommand(ctx, client, cfg, input); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return nil
}

func runCommand(ctx context.Context, client *sdk.Client, cfg *utils.Config, input string) error {
	command, arg, _ := strings.Cut(input, " ")

	switch command {
	case "start":
		status, err := client.StartSession(ctx, &sdk.StartSessionRequest{
			AgentID:   cfg.GetWithDefault("AGENT_ID", "daily-report"),
			OwnerID:   cfg.GetWithDefault("OWNER_ID", "commandline-user"),
			ProjectID: cfg.Get("PROJECT_ID"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started, state: %s\n", status.SessionID, status.State)

	case "end":
		status, err := client.EndSession(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Session ended, finalization: %s\n", status.FinalizeStatus)

	case "progress":
		progress, err := client.GetProgress(ctx)
		if err != nil {
			return err
		}
		printProgress(progress)

	case "status":
		status, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("State: %s, finalization: %s\n", status.State, status.FinalizeStatus)

	case "outcome":
		outcome, err := client.GetLastOutcome(ctx)
		if err != nil {
			return err
		}
		printOutcome(outcome)

	case "report":
		if arg == "" {
			return fmt.Errorf("usage: report <id>")
		}
		summary, err := client.GetReport(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Printf("Report %s: session %s, date %s, %d transcript events, audio: %v, persisted: %v\n",
			summary.ID, summary.SessionID, summary.ReportDate, summary.TranscriptEvents, summary.HasAudio, summary.Persisted)

	default:
		return fmt.Errorf("unknown command '%s'", command)
	}

	return nil
}

func printProgress(progress *sdk.ProgressResponse) {
	fmt.Printf("Required topics: %d/%d, optional: %d/%d\n",
		progress.Progress.RequiredDone, progress.Progress.RequiredTotal,
		progress.Progress.OptionalDone, progress.Progress.OptionalTotal)

	for _, item := range progress.Progress.Items {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		fmt.Printf("  [%s] %s (%s)\n", mark, item.Item.ID, item.Item.Category)
	}
}

func printOutcome(outcome *sdk.FinalizeOutcome) {
	fmt.Printf("Report %s, persisted: %v, degraded: %v\n", outcome.ReportID, outcome.Persisted, outcome.Degraded)
	if outcome.TranscriptPending {
		fmt.Println("  transcript still pending on the voice backend")
	}
	if outcome.AudioMissing {
		fmt.Println("  no audio recording captured")
	}
	for _, warning := range outcome.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}
