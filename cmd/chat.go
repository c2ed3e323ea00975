package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/chat"
	"github.com/desertthunder/harmony/internal/repositories"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/desertthunder/harmony/internal/ui"
	"github.com/urfave/cli/v3"
)

// Chat launches the chat TUI for a room.
func (r *Runner) Chat(ctx context.Context, cmd *cli.Command) error {
	user, err := r.user(cmd.String("user"))
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	transport, err := r.chatTransport(fileLogger)
	if err != nil {
		return err
	}
	defer transport.Close()

	author := user.Author()
	room := chat.NewRoom(cmd.String("room"), author, chat.NewClient(transport, fileLogger), repositories.NewMessageRepository(db),
		chat.WithPageSize(r.config.Chat.PageSize),
		chat.WithMaxContentLength(r.config.Chat.MaxContentLength),
		chat.WithRoomLogger(fileLogger),
	)
	defer room.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(ctx, room, author, fileLogger), tea.WithAltScreen(), tea.WithContext(ctx))
	defer ui.Bind(p, room)()

	go func() {
		if err := room.Open(ctx, ui.StateHandler(p)); err != nil {
			fileLogger.Error("failed to join room", "room", room.Name(), "error", err)
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// chatTransport connects the configured pub/sub transport.
func (r *Runner) chatTransport(logger *log.Logger) (chat.Transport, error) {
	switch strings.ToLower(r.config.Chat.Transport) {
	case "nats":
		t, err := chat.NewNATSTransport(r.config.Chat.NATSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: chat broker: %v", shared.ErrServiceUnavailable, err)
		}
		return t, nil
	case "", "memory":
		logger.Warn("using in-process chat transport, messages from other processes will not arrive")
		return chat.NewMemoryHub().Transport(), nil
	default:
		return nil, fmt.Errorf("%w: unknown chat transport %q", shared.ErrInvalidConfig, r.config.Chat.Transport)
	}
}
