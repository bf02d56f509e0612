package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/infrastructure/realtime"
	"github.com/spf13/cobra"
)

type listenOptions struct {
	conversationID string
	url            string
	token          string
	transports     []string
}

func newListenCmd(root *rootOptions) *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Join a conversation and print its events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation id to join")
	cmd.Flags().StringVar(&opts.url, "url", "", "Gateway base URL (default MESSAGING_URL)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token (default MESSAGING_TOKEN)")
	cmd.Flags().StringSliceVar(&opts.transports, "transport", nil, "Transports in order of preference (default MESSAGING_TRANSPORTS)")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

// eventLine is one printed event, written as a JSON line.
type eventLine struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func runListen(ctx context.Context, out io.Writer, root *rootOptions, opts *listenOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.url != "" {
		cfg.Messaging.URL = opts.url
	}
	if opts.token != "" {
		cfg.Messaging.Token = opts.token
	}
	if len(opts.transports) > 0 {
		cfg.Messaging.Transports = opts.transports
	}
	clientOpts, err := realtime.OptionsFromConfig(&cfg.Messaging, root.logger(os.Stderr))
	if err != nil {
		return err
	}
	client, err := realtime.NewClient(clientOpts)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	emit := func(event conversation.EventName, data any) {
		mu.Lock()
		defer mu.Unlock()
		_ = printJSONLine(out, eventLine{Event: string(event), Data: data})
	}

	done := make(chan string, 1)
	fatal := make(chan error, 1)
	client.OnStateChange(func(s realtime.ConnState) {
		emit("state", s.String())
		if s == realtime.StateReady {
			// rejoin after every reconnect
			go client.JoinConversation(opts.conversationID)
		}
	})
	client.OnJoined(func(id string) { emit(conversation.EventJoinedConversation, conversation.ConversationRef{ConversationID: id}) })
	client.OnMessage(func(m conversation.Message) { emit(conversation.EventNewMessage, m) })
	client.OnMessageUpdated(func(m conversation.Message) { emit(conversation.EventMessageUpdated, m) })
	client.OnMessageDeleted(func(m conversation.MessageDeleted) { emit(conversation.EventMessageDeleted, m) })
	client.OnMessagesRead(func(r conversation.ReadReceipt) { emit(conversation.EventMessagesRead, r) })
	client.OnTyping(func(e conversation.TypingEvent) { emit(conversation.EventUserTyping, e) })
	client.OnError(func(err error) {
		emit(conversation.EventError, err.Error())
		if errors.Is(err, realtime.ErrReconnectExhausted) || errors.Is(err, realtime.ErrUnauthorized) {
			select {
			case fatal <- err:
			default:
			}
		}
	})
	client.OnDisconnect(func(reason string) {
		select {
		case done <- reason:
		default:
		}
	})

	defer client.Disconnect()
	// A failed first attempt goes through the same backoff as a dropped connection; the
	// client reports the terminal error through OnError.
	if err := client.Connect(ctx); errors.Is(err, realtime.ErrUnauthorized) {
		return fmt.Errorf("connect: %w", err)
	}

	select {
	case <-ctx.Done():
		client.LeaveConversation(opts.conversationID)
		return nil
	case reason := <-done:
		return fmt.Errorf("disconnected by gateway: %s", reason)
	case err := <-fatal:
		return fmt.Errorf("listen: %w", err)
	}
}
