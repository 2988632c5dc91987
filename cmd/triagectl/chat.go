package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-haven/backend/internal/app"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
)

func chatCmd() *cobra.Command {
	var ownerID, name, lang string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the triage workflow interactively",
		Long: `Starts a REPL bound to one owner. Every line is submitted through the full
classify and route cycle. Commands: /clear, /lang [en|ta], /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc locale.Locale
			if lang != "" {
				parsed, err := locale.Parse(lang)
				if err != nil {
					return err
				}
				loc = parsed
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Workflow.Open(ctx, ownerID, name, loc); err != nil {
				return err
			}
			return runREPL(ctx, a.Workflow, ownerID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id of the conversation")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded on escalations")
	cmd.Flags().StringVar(&lang, "locale", "", "starting locale (english or tamil)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// runREPL reads one message per line until EOF or /quit.
func runREPL(ctx context.Context, wf *triage.Workflow, ownerID string, in io.Reader, out io.Writer) error {
	snapshot, err := wf.Snapshot(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, m := range snapshot.Transcript {
		printMessage(out, m)
	}
	fmt.Fprintf(out, "[%s] type /quit to exit\n", snapshot.Locale)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			snapshot, err := wf.Clear(ctx, ownerID)
			catalog := snapshot.Locale.Catalog()
			if err != nil {
				fmt.Fprintf(out, "! %s (%s)\n", catalog.ClearFailed, triage.Code(err))
				continue
			}
			fmt.Fprintf(out, "* %s\n", catalog.Cleared)
		case strings.HasPrefix(line, "/lang"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/lang"))
			var snapshot triage.Snapshot
			if arg == "" {
				snapshot, err = wf.ToggleLocale(ctx, ownerID)
			} else {
				var loc locale.Locale
				if loc, err = locale.Parse(arg); err == nil {
					snapshot, err = wf.SetLocale(ctx, ownerID, loc)
				}
			}
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			fmt.Fprintf(out, "* locale: %s\n", snapshot.Locale)
		default:
			outcome, err := wf.Submit(ctx, ownerID, line)
			if err != nil && outcome.Incoming.ID == "" {
				fmt.Fprintf(out, "! message not sent: %s\n", triage.Code(err))
				continue
			}
			if !outcome.Stale {
				fmt.Fprintf(out, "bot: %s\n", outcome.Text)
			}
			if outcome.Dial != "" {
				fmt.Fprintf(out, "* dialing %s\n", outcome.Dial)
			}
			if err != nil {
				fmt.Fprintf(out, "! reply not saved: %s\n", triage.Code(err))
			}
		}
	}
}

func printMessage(out io.Writer, m chat.Message) {
	who := "you"
	if m.Direction == chat.Outgoing {
		who = "bot"
	}
	fmt.Fprintf(out, "%s %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
}
