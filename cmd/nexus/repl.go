package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nexus-ai/nexus-go/pkg/core"
)

const replHelp = `Commands:
  quit, exit, bye   leave the conversation
  reset             clear the conversation
  status            show provider, model and memory usage
  stats             show learning statistics
  help              show this message
  + / - / 0         rate the last answer (positive, negative, neutral)
Anything else is sent to the assistant.
`

// feedbackRatings maps the rating shortcuts to feedback values.
var feedbackRatings = map[string]int{"+": 1, "-": -1, "0": 0}

// repl reads lines from in until EOF, a quit command or ctx cancellation.
func repl(ctx context.Context, assistant *core.Assistant, in io.Reader, out io.Writer) error {
	status := assistant.Status()
	fmt.Fprintf(out, "Nexus (%s/%s). Type 'help' for commands.\n", status.Provider, status.Model)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "quit", "exit", "bye":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprint(out, replHelp)
			continue
		case "reset":
			assistant.Reset()
			fmt.Fprintln(out, "Conversation reset.")
			continue
		case "status":
			if err := writeJSON(out, assistant.Status()); err != nil {
				return err
			}
			continue
		case "stats":
			stats, err := assistant.Statistics(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			if err := writeJSON(out, stats); err != nil {
				return err
			}
			continue
		}

		if rating, ok := feedbackRatings[line]; ok {
			result, err := assistant.Feedback(ctx, rating)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Thanks! Quality %.2f", result.OverallQuality)
			if len(result.Insights.Topics) > 0 {
				fmt.Fprintf(out, ", topics: %s", strings.Join(result.Insights.Topics, ", "))
			}
			fmt.Fprintln(out)
			for _, s := range result.Suggestions {
				fmt.Fprintf(out, "  - %s\n", s)
			}
			continue
		}

		reply, err := assistant.Ask(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nNexus: %s\n", reply.Content)
		if !reply.Failed {
			fmt.Fprintf(out, "(%.2fs, rate with + / - / 0)\n", reply.ResponseTime)
		}
	}
}
