package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/gmsas95/moneychat/internal/chat"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
)

// RunCLI sends one message when message is set, otherwise starts an
// interactive session on in/out
func (app *App) RunCLI(ctx context.Context, message string, in io.Reader, out io.Writer) error {
	if !app.Config().HasCredentials() {
		return apperrors.ErrCredentialsMissing
	}

	if message != "" {
		return app.OneShot(ctx, message, out)
	}
	return app.Interactive(ctx, in, out)
}

func (app *App) cliUser() string {
	if user := app.Config().CLI.UserID; user != "" {
		return user
	}
	return "default"
}

// OneShot handles a single message and prints the reply
func (app *App) OneShot(ctx context.Context, msg string, out io.Writer) error {
	start := time.Now()
	resp, err := app.Chat.Handle(ctx, finance.IncomingMessage{
		UserID: app.cliUser(),
		Text:   msg,
		Mode:   finance.ModeDefault,
	})
	if err != nil {
		return err
	}

	printResponse(out, resp)
	fmt.Fprintf(out, "\n(%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// Interactive reads messages line by line until exit or EOF. The prompt is
// only printed when stdin is a terminal.
func (app *App) Interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	tty := false
	if f, ok := in.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}

	if tty {
		fmt.Fprintln(out, "moneychat - interactive mode")
		fmt.Fprintln(out, "Type 'exit' or 'quit' to exit, 'help' for commands")
		fmt.Fprintln(out)
	}

	maxLine := app.Config().Server.MaxMessageBytes
	if maxLine < 64*1024 {
		maxLine = 64 * 1024
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for {
		if tty {
			fmt.Fprint(out, "you> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			return nil
		case "help", "h":
			PrintInteractiveHelp(out)
			continue
		case "clear", "cls":
			if tty {
				fmt.Fprint(out, "\033[H\033[2J")
			}
			continue
		}

		resp, err := app.Chat.Handle(ctx, finance.IncomingMessage{
			UserID: app.cliUser(),
			Text:   input,
			Mode:   finance.ModeDefault,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", apperrors.PublicMessage(err))
			continue
		}
		printResponse(out, resp)
		fmt.Fprintln(out)
	}
}

// PrintInteractiveHelp lists the interactive commands
func PrintInteractiveHelp(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Interactive Commands:")
	fmt.Fprintln(out, "  help, h     - Show this help")
	fmt.Fprintln(out, "  clear, cls  - Clear screen")
	fmt.Fprintln(out, "  exit, quit  - Exit the program")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Anything else is sent as a message, e.g. \"Spent $12 on lunch\".")
	fmt.Fprintln(out)
}

func printResponse(out io.Writer, resp *chat.Response) {
	fmt.Fprintln(out, resp.Message)

	if resp.Transaction != nil {
		tx := resp.Transaction
		fmt.Fprintf(out, "  saved: %s %s %s", tx.Description, tx.OriginalAmount.StringFixed(2), tx.OriginalCurrency)
		if tx.ConvertedCurrency != tx.OriginalCurrency {
			fmt.Fprintf(out, " (= %s %s)", tx.ConvertedAmount.StringFixed(2), tx.ConvertedCurrency)
		}
		fmt.Fprintln(out)
	}
	if resp.ImportResult != nil {
		fmt.Fprintf(out, "  imported: %d, failed: %d\n", resp.ImportResult.ImportedCount, resp.ImportResult.FailedCount)
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintf(out, "  > %s\n", s)
	}
}
