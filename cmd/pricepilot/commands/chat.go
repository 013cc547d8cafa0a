package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pricepilot-ai/pricepilot/internal/chat"
	"github.com/pricepilot-ai/pricepilot/internal/config"
	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/internal/market"
	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/internal/transport"
)

var chatNoColor bool

var chatCmd = &cobra.Command{
	Use:   "chat [question...]",
	Short: "Start an interactive pricing-copilot session",
	Long: `Start an interactive terminal session against the pricing copilot.

Examples:
  pricepilot chat
  pricepilot chat "Why did the widget margin drop last week?"

In the session, /retry resends the last question after a failure,
/clear wipes the transcript and /quit exits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
}

func runChat(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if cfg.UpstreamURL == "" {
		return fmt.Errorf("no upstream URL configured; set upstreamUrl in %s or PRICEPILOT_UPSTREAM_URL", config.FileName)
	}

	color.NoColor = chatNoColor || color.NoColor

	bus := event.NewBus()
	defer bus.Close()

	store := transcript.New(bus)

	var contexts chat.ContextProvider
	if cfg.MarketContextURL != "" {
		contexts = market.NewHTTPProvider(cfg.MarketContextURL, market.DefaultTTL)
	}

	orchestrator := chat.NewOrchestrator(chat.Options{
		Transport:        transport.NewClient(cfg.UpstreamURL),
		Contexts:         contexts,
		Store:            store,
		Policy:           chat.NewFallbackPolicy(cfg.FailureThreshold),
		HeartbeatSeconds: cfg.HeartbeatSeconds,
	})
	defer orchestrator.Shutdown()

	assistantTag := color.New(color.FgGreen, color.Bold).Sprint("copilot ›")
	toolColor := color.New(color.FgYellow)
	errColor := color.New(color.FgRed)
	dimColor := color.New(color.FgHiBlack)

	unsub := bus.SubscribeAll(func(e event.Event) {
		switch e.Type {
		case event.StreamStarted:
			fmt.Printf("%s ", assistantTag)
		case event.StreamDelta:
			if data, ok := e.Data.(event.StreamDeltaData); ok {
				fmt.Print(data.Delta)
			}
		case event.StreamTool:
			if data, ok := e.Data.(event.StreamToolData); ok && data.Tool != "" {
				fmt.Printf("\n%s\n", toolColor.Sprintf("→ tool %s", data.Tool))
			}
		case event.StreamFinished:
			if data, ok := e.Data.(event.StreamFinishedData); ok && data.Message != nil {
				fmt.Println()
				if data.Message.Confidence != nil {
					fmt.Println(dimColor.Sprintf("  confidence: %.2f", *data.Message.Confidence))
				}
				if len(data.Message.ToolsUsed) > 0 {
					fmt.Println(dimColor.Sprintf("  tools: %s", strings.Join(data.Message.ToolsUsed, ", ")))
				}
			}
		case event.StreamFailed:
			if data, ok := e.Data.(event.StreamFailedData); ok {
				fmt.Printf("\n%s\n", errColor.Sprintf("✗ %s", data.Error))
				fmt.Println(dimColor.Sprint("  /retry to try again"))
			}
		}
	})
	defer unsub()

	fmt.Fprintln(os.Stderr, dimColor.Sprintf("Connected to %s", cfg.UpstreamURL))

	if question := strings.Join(args, " "); strings.TrimSpace(question) != "" {
		orchestrator.SubmitTurn(question)
		orchestrator.Wait()
		return nil
	}

	youTag := color.New(color.FgCyan, color.Bold).Sprint("you ›")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s ", youTag)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			store.Clear()
			fmt.Println(dimColor.Sprint("transcript cleared"))
			continue
		case line == "/retry":
			if err := orchestrator.RetryLastTurn(); err != nil {
				fmt.Println(errColor.Sprintf("✗ %v", err))
				continue
			}
		default:
			orchestrator.SubmitTurn(line)
		}

		orchestrator.Wait()
	}
}
