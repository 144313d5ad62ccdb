// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags(pretty bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: pretty,
		},
	}
}

func idArg() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "id", UsageText: "video id"}}
}

func listFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "Page number",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Page size",
			Value: 10,
		},
		&cli.StringFlag{
			Name:  "status",
			Usage: "Filter by status (pending, processing, completed, failed)",
		},
		&cli.StringFlag{
			Name:  "flag",
			Usage: "Filter by sensitivity (safe, flagged, unknown)",
		},
		&cli.StringFlag{
			Name:  "search",
			Usage: "Search titles and descriptions",
		},
	}
}

// setupCommand writes the config file and initializes the credential database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml from the template, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand handles session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the dashboard session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in and store the credential",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "email",
						Aliases: []string{"e"},
						Usage:   "Account email (prompted when omitted)",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account and sign in",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Display name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "organization",
						Usage: "Organization name",
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Requested role (viewer, editor, admin)",
					},
				},
				Action: r.AuthRegister,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored credential",
				Action: r.AuthLogout,
			},
			{
				Name:   "whoami",
				Usage:  "Show the signed-in profile",
				Flags:  outputFlags(true),
				Action: r.AuthWhoami,
			},
			{
				Name:  "profile",
				Usage: "Update username or email",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "username",
						Usage: "New display name",
					},
					&cli.StringFlag{
						Name:  "email",
						Usage: "New email",
					},
				},
				Action: r.AuthProfile,
			},
			{
				Name:   "password",
				Usage:  "Change the account password",
				Action: r.AuthPassword,
			},
		},
	}
}

// videosCommand handles the video library
func videosCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "videos",
		Aliases: []string{"v"},
		Usage:   "Browse and manage videos",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List videos",
				Flags:  append(listFlags(), outputFlags(false)...),
				Action: r.VideosList,
			},
			{
				Name:      "get",
				Usage:     "Show one video",
				Arguments: idArg(),
				Flags:     outputFlags(true),
				Action:    r.VideosGet,
			},
			{
				Name:      "update",
				Usage:     "Edit title or description",
				Arguments: idArg(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "New title",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "New description",
					},
				},
				Action: r.VideosUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a video",
				Arguments: idArg(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: r.VideosDelete,
			},
			{
				Name:   "stats",
				Usage:  "Show library statistics",
				Flags:  outputFlags(true),
				Action: r.VideosStats,
			},
			{
				Name:      "frames",
				Usage:     "List or export the extracted frames of a video",
				Arguments: idArg(),
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Save frames & a Markdown index to this directory",
					},
				}, outputFlags(false)...),
				Action: r.VideosFrames,
			},
			{
				Name:      "stream",
				Usage:     "Print the stream URL of a video",
				Arguments: idArg(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the stream in the default player or browser",
					},
				},
				Action: r.VideosStream,
			},
			{
				Name:      "watch",
				Usage:     "Follow processing of a video until it completes or fails",
				Arguments: idArg(),
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Stop waiting after this long (0 waits indefinitely)",
					},
				},
				Action: r.VideosWatch,
			},
			{
				Name:  "export",
				Usage: "Export a page of videos as CSV, Markdown or text",
				Flags: append(listFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv, markdown or text",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (base name for csv, directory for markdown, file for text)",
					},
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "Include library statistics",
						Value: true,
					},
				),
				Action: r.VideosExport,
			},
		},
	}
}

// uploadCommand uploads a file and follows it through processing
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload a video and follow it until processing finishes",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file", UsageText: "path to the video"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Video title (defaults to the file name)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop waiting for processing after this long (0 waits indefinitely)",
			},
			&cli.BoolFlag{
				Name:  "detach",
				Usage: "Return once the server has accepted the file",
			},
		},
		Action: r.Upload,
	}
}

// usersCommand handles admin user management
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage users (admin only)",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List users",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Page size",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Filter by role",
					},
					&cli.StringFlag{
						Name:  "search",
						Usage: "Search username and email",
					},
				}, outputFlags(false)...),
				Action: r.UsersList,
			},
			{
				Name:  "role",
				Usage: "Change the role of a user",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "role"},
				},
				Action: r.UsersRole,
			},
			{
				Name:  "toggle",
				Usage: "Activate or deactivate a user",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.UsersToggle,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing videos & monitoring uploads.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for browsing videos and monitoring uploads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI is running",
				Value: "./tmp/vidx-tui.log",
			},
		},
		Action: r.TUI,
	}
}

// serveCommand runs the diagnostics server with a live realtime channel.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Keep the realtime channel open and serve /healthz and /metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (defaults to server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (defaults to server.port)",
			},
		},
		Action: r.Serve,
	}
}
