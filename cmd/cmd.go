// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/harmony/internal/formatter"
	"github.com/urfave/cli/v3"
)

func userFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    usage,
		Required: true,
	}
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// dbCommand inspects and rolls back migrations.
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database migration commands",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "List applied migrations",
				Action: r.DatabaseStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.DatabaseRollback,
			},
		},
	}
}

// authCommand handles sign-in with the provider.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage provider sessions",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Sign in with Spotify using OAuth2",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show whether a user has a usable session",
				Flags:  []cli.Flag{userFlag("Username to check")},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove a user's stored session",
				Flags:  []cli.Flag{userFlag("Username to sign out")},
				Action: r.AuthLogout,
			},
		},
	}
}

// syncCommand refreshes the user's top artists from the provider.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Store the user's current top artists",
		Flags:  []cli.Flag{userFlag("Username to sync")},
		Action: r.Sync,
	}
}

// submitCommand adds a playlist to the candidate pool.
func submitCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a playlist for others to match against",
		Flags: []cli.Flag{
			userFlag("Submitting username"),
			&cli.StringFlag{
				Name:     "playlist",
				Aliases:  []string{"p"},
				Usage:    "Provider playlist ID",
				Required: true,
			},
		},
		Action: r.Submit,
	}
}

// matchCommand ranks candidate playlists for a user.
func matchCommand(r *Runner) *cli.Command {
	formats := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		formats[i] = string(f)
	}

	return &cli.Command{
		Name:  "match",
		Usage: "Rank submitted playlists against a user's taste",
		Flags: []cli.Flag{
			userFlag("Username to match"),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (" + strings.Join(formats, ", ") + ")",
				Value:   string(formatter.Text),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
		},
		Action: r.Match,
	}
}

// compareCommand reports whether two users have similar taste.
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare two users' taste profiles",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "First username", Required: true},
			&cli.StringFlag{Name: "b", Usage: "Second username", Required: true},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Compare,
	}
}

// chatCommand opens the chat TUI for a room.
func chatCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Join a chat room",
		Flags: []cli.Flag{
			userFlag("Username to chat as"),
			&cli.StringFlag{
				Name:    "room",
				Aliases: []string{"r"},
				Usage:   "Room name",
				Value:   "lobby",
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log file for the chat session",
				Value: "./tmp/harmony-chat.log",
			},
		},
		Action: r.Chat,
	}
}

// playCommand plays the user's ranked playlists on their active device.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Play matched playlists on the active Spotify device",
		Flags: []cli.Flag{
			userFlag("Username to play for"),
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Device polling interval",
			},
		},
		Action: r.Play,
	}
}

// serveCommand runs the embedded broker and HTTP routes.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat broker and token refresh server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "nats-port",
				Usage: "Port for the embedded NATS broker (-1 picks a free port)",
				Value: 4222,
			},
			&cli.BoolFlag{
				Name:  "no-broker",
				Usage: "Serve HTTP routes only",
			},
		},
		Action: r.Serve,
	}
}
