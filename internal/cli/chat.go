package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/store"
	"github.com/rcliao/automarket/internal/transcript"
)

func init() {
	chat := &cobra.Command{
		Use:   "chat <product-id>",
		Short: "Rewrite a product's marketing message with the assistant",
		Long: `Open a chat about one product. Each line you enter is rewritten by the
assistant and streamed back. Type /send to send the last rewrite for
marketing and /quit to leave. Ctrl-C stops a stream in progress.`,
		Args: cobra.ExactArgs(1),
		Run:  runChat,
	}
	chat.Flags().StringP("message", "m", "", "Rewrite this message and exit")
	chat.Flags().Bool("send", false, "With --message, send the rewrite for marketing")

	history := &cobra.Command{
		Use:   "history",
		Short: "Show stored chat transcripts",
		Args:  cobra.NoArgs,
		Run:   runChatHistory,
	}
	history.Flags().String("product", "", "Only this product")
	history.Flags().IntP("limit", "l", 50, "Maximum messages")

	chat.AddCommand(history)
	RootCmd.AddCommand(chat)
}

// errLocked is returned when a product is inside its lock window.
type errLocked struct {
	days int
}

func (e errLocked) Error() string {
	return fmt.Sprintf("this product was marketed recently; chat unlocks in %d days", e.days)
}

func runChat(cmd *cobra.Command, args []string) {
	productID := args[0]
	message, _ := cmd.Flags().GetString("message")
	send, _ := cmd.Flags().GetBool("send")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		exitErr("chat", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "chat")

	d, err := e.api.Product(ctx, productID)
	if err != nil {
		exitErr("chat", err)
	}
	if lock := model.LockStatus(d.MarketingDate(), time.Now()); lock.Locked {
		exitErr("chat", errLocked{days: lock.DaysLeft})
	}

	out := cmd.OutOrStdout()
	a, err := transcript.New(transcript.Config{
		ProductID: productID,
		Streamer:  e.api,
		Confirmer: e.api,
		History:   e.store,
		Greeting:  message == "",
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		exitErr("chat", err)
	}
	defer a.Close()

	if message != "" {
		res, err := chatOnce(ctx, a, productID, message, send)
		if err != nil {
			exitErr("chat", err)
		}
		output(out, res, func(w io.Writer) {
			fmt.Fprintln(w, res.Final)
			if res.Sent {
				fmt.Fprintln(w, transcript.SentNotice)
			}
		})
		return
	}

	fmt.Fprintf(out, "Chatting about %s\n", orNA(d.Name()))
	for _, m := range a.Messages() {
		printMessage(out, m)
	}
	if err := chatLoop(ctx, a, os.Stdin, out); err != nil {
		exitErr("chat", err)
	}
}

type chatResult struct {
	ProductID string `json:"product_id"`
	Final     string `json:"final"`
	Sent      bool   `json:"sent"`
	Status    string `json:"status,omitempty"`
}

func chatOnce(ctx context.Context, a *transcript.Assembler, productID, message string, send bool) (chatResult, error) {
	res := chatResult{ProductID: productID}
	if err := a.Submit(ctx, message); err != nil {
		return res, err
	}
	res.Final = a.Final()
	if send {
		status, err := a.ConfirmFinal(ctx)
		if err != nil {
			return res, err
		}
		res.Sent = true
		res.Status = status
	}
	return res, nil
}

// chatLoop reads drafts from in until EOF or /quit. Assistant tokens are
// printed as they arrive.
func chatLoop(ctx context.Context, a *transcript.Assembler, in io.Reader, out io.Writer) error {
	var printed int
	a.OnUpdate(func(m model.TranscriptMessage) {
		if m.Role != model.RoleAssistant {
			return
		}
		// Tokens only ever extend the text.
		if len(m.Text) < printed {
			printed = 0
		}
		fmt.Fprint(out, m.Text[printed:])
		printed = len(m.Text)
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/send":
			if a.Final() == "" {
				fmt.Fprintln(out, "Nothing to send yet.")
				continue
			}
			fmt.Fprint(out, "assistant: ")
			printed = 0
			if _, err := a.ConfirmFinal(ctx); err != nil {
				fmt.Fprintf(out, "error: %s\n", userMessage(err))
				continue
			}
			fmt.Fprintln(out)
			continue
		}

		fmt.Fprint(out, "assistant: ")
		printed = 0
		err := a.Submit(ctx, line)
		fmt.Fprintln(out)
		switch {
		case err == nil:
			fmt.Fprintln(out, "(type /send to send this message for marketing)")
		case errors.Is(err, context.Canceled):
			return nil
		default:
			fmt.Fprintf(out, "error: %s\n", userMessage(err))
		}
	}
}

func printMessage(w io.Writer, m model.TranscriptMessage) {
	fmt.Fprintf(w, "%s: %s\n", m.Role, m.Text)
}

func runChatHistory(cmd *cobra.Command, args []string) {
	product, _ := cmd.Flags().GetString("product")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	msgs, err := s.History(cmd.Context(), store.HistoryParams{ProductID: product, Limit: limit})
	if err != nil {
		exitErr("chat history", err)
	}
	if msgs == nil {
		msgs = []model.TranscriptMessage{}
	}
	output(cmd.OutOrStdout(), msgs, func(w io.Writer) {
		for _, m := range msgs {
			fmt.Fprintf(w, "[%s] %s ", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.ProductID)
			printMessage(w, m)
		}
	})
}
