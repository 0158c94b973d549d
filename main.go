// Command pochat is an interactive terminal client for the PO chat agent.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/procurechat/pochat/agentclient"
	"github.com/procurechat/pochat/chat"
	"github.com/procurechat/pochat/config"
	"github.com/procurechat/pochat/domain"
	"github.com/procurechat/pochat/masterdata"
	"github.com/procurechat/pochat/session"
	"github.com/procurechat/pochat/telemetry"
)

func main() {
	cfg := config.Load()
	baseURL := flag.String("base-url", cfg.AgentBaseURL, "Chat backend base URL")
	flag.Parse()

	logger, err := telemetry.InitLogger(slog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	metrics, shutdown, err := telemetry.InitMetrics(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize metrics: %v\n", err)
		os.Exit(1)
	}
	defer shutdown()

	store := session.NewStore(logger)
	client := chat.New(agentclient.NewClient(*baseURL, cfg.ChatTimeout), store, logger, metrics)
	lookup := masterdata.NewClient(*baseURL, cfg.LookupTimeout)

	fmt.Printf("Connected to %s\n", *baseURL)
	fmt.Println("Type a message to chat. Commands: /find <type> <query>, /mention <type> <id> <name>,")
	fmt.Println("/draft, /confirm, /reset, /quit. Answer clarifications with their number or 'f'.")

	snapshots, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go render(snapshots)

	var pendingMentions []domain.Mention
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit":
			fmt.Println("Bye!")
			return

		case input == "/reset":
			if err := client.Reset(); err != nil {
				fmt.Printf("Cannot reset: %v\n", err)
			} else {
				pendingMentions = nil
				fmt.Println("Session cleared.")
			}

		case input == "/draft":
			printDraft(store.Snapshot())

		case input == "/confirm":
			client.ConfirmPreview(ctx)

		case strings.HasPrefix(input, "/find "):
			runFind(ctx, lookup, cfg.SearchLimit, input)

		case strings.HasPrefix(input, "/mention "):
			if m, ok := parseMention(input); ok {
				pendingMentions = append(pendingMentions, m)
				fmt.Printf("Will mention %s %q on the next message.\n", m.Type, m.DisplayName)
			} else {
				fmt.Println("Usage: /mention <type> <id> <name>")
			}

		default:
			if answered := answerClarification(ctx, client, store, input); answered {
				continue
			}
			client.SendMessage(ctx, input, pendingMentions)
			pendingMentions = nil
		}
	}
}

// render prints state changes as they are published: streamed tokens,
// finalized messages, clarifications, submit results and errors.
func render(snapshots <-chan session.State) {
	printedMsgs := 0
	printedStream := 0
	lastErr := ""

	for snap := range snapshots {
		if len(snap.StreamingContent) < printedStream {
			printedStream = 0
		}
		if len(snap.StreamingContent) > printedStream {
			fmt.Print(snap.StreamingContent[printedStream:])
			printedStream = len(snap.StreamingContent)
		}

		for ; printedMsgs < len(snap.Messages); printedMsgs++ {
			printMessage(snap.Messages[printedMsgs], &printedStream)
		}
		if printedMsgs > len(snap.Messages) { // reset happened
			printedMsgs = len(snap.Messages)
		}

		if snap.Err != "" && snap.Err != lastErr {
			fmt.Printf("\n[error] %s\n", snap.Err)
		}
		lastErr = snap.Err
	}
}

func printMessage(m domain.Message, printedStream *int) {
	switch p := m.Payload.(type) {
	case *domain.Clarification:
		fmt.Printf("\n? %s\n", p.Question)
		for i, opt := range p.Options {
			fmt.Printf("  %d) %s\n", i+1, opt.Label)
		}
	case *domain.SubmitResult:
		if p.Success {
			fmt.Printf("\nPO submitted: %s (%s)\n", p.PONumber, p.POID)
		} else {
			fmt.Printf("\nSubmission failed: %s\n", p.Error)
		}
	default:
		if m.Role == domain.RoleAssistant {
			if *printedStream > 0 {
				// Content already printed token by token.
				fmt.Println()
				*printedStream = 0
			} else if m.Content != "" {
				fmt.Printf("\n%s\n", m.Content)
			}
		}
	}
}

// answerClarification resolves a numeric or 'f' reply against the latest
// unanswered clarification. Reports whether the input was consumed.
func answerClarification(ctx context.Context, client *chat.Client, store *session.Store, input string) bool {
	msg, clar := latestUnanswered(store.Snapshot())
	if clar == nil {
		return false
	}

	if input == "f" {
		client.FigureItOut(ctx, msg, clar.Field)
		return true
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(clar.Options) {
		return false
	}
	opt := clar.Options[n-1]
	if opt.IsFigureItOut {
		client.FigureItOut(ctx, msg, clar.Field)
	} else {
		client.RespondToClarification(ctx, msg, clar.Field, opt.Value)
	}
	return true
}

func latestUnanswered(snap session.State) (string, *domain.Clarification) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if c, ok := snap.Messages[i].Payload.(*domain.Clarification); ok && !c.Answered {
			return snap.Messages[i].ID, c
		}
	}
	return "", nil
}

func runFind(ctx context.Context, lookup *masterdata.Client, limit int, input string) {
	parts := strings.SplitN(strings.TrimPrefix(input, "/find "), " ", 2)
	if len(parts) != 2 {
		fmt.Println("Usage: /find <type> <query>")
		return
	}
	items, err := lookup.Search(ctx, domain.MentionType(parts[0]), parts[1], limit)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, item := range items {
		fmt.Printf("  %s  %s\n", item.ID, item.Name)
	}
}

func parseMention(input string) (domain.Mention, bool) {
	parts := strings.SplitN(strings.TrimPrefix(input, "/mention "), " ", 3)
	if len(parts) != 3 {
		return domain.Mention{}, false
	}
	mt := domain.MentionType(parts[0])
	if _, ok := domain.EntityTypeLabels[mt]; !ok {
		return domain.Mention{}, false
	}
	return domain.Mention{Type: mt, ID: parts[1], DisplayName: parts[2]}, true
}

func printDraft(snap session.State) {
	d := snap.PODraft
	if d.Empty() {
		fmt.Println("Draft is empty.")
		return
	}
	if d.Counterparty != nil {
		fmt.Printf("Counterparty: %s\n", d.Counterparty.Name)
	}
	for _, item := range d.Items {
		fmt.Printf("  %s x%.0f %s @ %.2f = %.2f\n", item.Name, item.Qty, item.Unit, item.Rate, item.Total)
	}
	if d.Terms != nil {
		fmt.Printf("Terms: %s\n", d.Terms.Name)
	}
	if d.BillingAddress != nil {
		fmt.Printf("Billing: %s\n", d.BillingAddress.Text)
	}
	if d.Subtotal != nil {
		fmt.Printf("Subtotal: %.2f\n", *d.Subtotal)
	}
	if snap.POReady {
		fmt.Println("PO is ready to submit (/confirm).")
	}
	if snap.POSubmitted {
		fmt.Println("PO has been submitted.")
	}
}
