package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMessageCmd создаёт группу команд для работы с шиной сообщений.
func NewMessageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Send and read bus messages",
	}

	cmd.AddCommand(
		newMessageSendCmd(clientFn, outputFn),
		newMessageInboxCmd(clientFn, outputFn),
		newMessageConversationCmd(clientFn, outputFn),
	)

	return cmd
}

func newMessageSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req SendMessageRequest

	cmd := &cobra.Command{
		Use:   "send BODY",
		Short: "Send a message (broadcast if --to is empty)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Body = args[0]

			resp, err := client.SendMessage(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Message %s delivered to %d recipient(s)", resp.Message.ID, resp.Recipients))
			if out.IsJSON() {
				out.JSON(resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.SenderID, "from", "human", "Sender ID")
	cmd.Flags().StringVar(&req.RecipientID, "to", "", "Recipient ID")
	cmd.Flags().StringVar(&req.Kind, "kind", "question", "Kind (assignment, status_update, question, answer, system)")
	cmd.Flags().StringVar(&req.CorrelationID, "correlation", "", "Correlation ID")

	return cmd
}

func newMessageInboxCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var since string
	var limit int

	cmd := &cobra.Command{
		Use:   "inbox RECIPIENT",
		Short: "List messages delivered to a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			msgs, err := client.Inbox(args[0], since, limit)
			if err != nil {
				return err
			}

			printMessages(out, msgs)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only messages after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of most recent messages")

	return cmd
}

func newMessageConversationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "conversation A B",
		Short: "Show messages exchanged between two participants",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			msgs, err := client.Conversation(args[0], args[1])
			if err != nil {
				return err
			}

			printMessages(out, msgs)
			return nil
		},
	}
}

func printMessages(out *Output, msgs []MessageResponse) {
	headers := []string{"TIME", "FROM", "TO", "KIND", "BODY"}
	rows := make([][]string, len(msgs))
	for i, m := range msgs {
		to := m.RecipientID
		if to == "" {
			to = "*"
		}
		rows[i] = []string{m.Timestamp, m.SenderID, to, m.Kind, truncate(m.Body, 60)}
	}

	out.Print(headers, rows, msgs)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
