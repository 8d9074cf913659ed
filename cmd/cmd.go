// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func limitFlag(value int) cli.Flag {
	return &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"l"},
		Usage:   "Maximum number of items to return (1-50)",
		Value:   value,
	}
}

func withFlags(base []cli.Flag, extra ...cli.Flag) []cli.Flag {
	return append(extra, base...)
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and the credential database",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the credential database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand manages the stored catalog credential
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Log in to the music catalog and manage the stored credential",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize in the browser and store the credential",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show whether a credential is stored and when it expires",
				Flags:  jsonFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Exchange the refresh token for a new access token now",
				Action: r.AuthRefresh,
			},
			{
				Name:   "token",
				Usage:  "Print a valid access token, refreshing it if expired",
				Action: r.AuthToken,
			},
			{
				Name:   "logout",
				Usage:  "Delete the stored credential",
				Action: r.AuthLogout,
			},
		},
	}
}

// catalogCommand handles read-only catalog queries
func catalogCommand(r *Runner) *cli.Command {
	idArg := func(name string) []cli.Argument {
		return []cli.Argument{&cli.StringArg{Name: name}}
	}

	return &cli.Command{
		Name:    "catalog",
		Aliases: []string{"cat"},
		Usage:   "Query the music catalog as the logged-in user",
		Commands: []*cli.Command{
			{
				Name:   "me",
				Usage:  "Show the current user's profile",
				Flags:  jsonFlags(),
				Action: r.CatalogMe,
			},
			{
				Name:   "playlists",
				Usage:  "List the current user's playlists",
				Flags:  withFlags(jsonFlags(), limitFlag(20), &cli.IntFlag{Name: "offset", Usage: "Index of the first playlist"}),
				Action: r.CatalogPlaylists,
			},
			{
				Name:   "top-tracks",
				Usage:  "List the current user's top tracks",
				Flags:  withFlags(jsonFlags(), limitFlag(20)),
				Action: r.CatalogTopTracks,
			},
			{
				Name:   "top-artists",
				Usage:  "List the current user's top artists",
				Flags:  withFlags(jsonFlags(), limitFlag(20)),
				Action: r.CatalogTopArtists,
			},
			{
				Name:   "recent",
				Usage:  "List recently played tracks",
				Flags:  withFlags(jsonFlags(), limitFlag(20)),
				Action: r.CatalogRecent,
			},
			{
				Name:      "search",
				Usage:     "Search albums, artists, playlists and tracks",
				Arguments: idArg("query"),
				Flags: withFlags(jsonFlags(), limitFlag(10), &cli.StringSliceFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Usage:   "Item types to search (album, artist, playlist, track)",
					Value:   []string{"album", "track"},
				}),
				Action: r.CatalogSearch,
			},
			{
				Name:      "album",
				Usage:     "Show one album",
				Arguments: idArg("id"),
				Flags:     jsonFlags(),
				Action:    r.CatalogAlbum,
			},
			{
				Name:      "album-tracks",
				Usage:     "List an album's tracks",
				Arguments: idArg("id"),
				Flags:     withFlags(jsonFlags(), limitFlag(50), &cli.IntFlag{Name: "offset", Usage: "Index of the first track"}),
				Action:    r.CatalogAlbumTracks,
			},
			{
				Name:      "artist",
				Usage:     "Show one artist",
				Arguments: idArg("id"),
				Flags:     jsonFlags(),
				Action:    r.CatalogArtist,
			},
			{
				Name:      "artist-top-tracks",
				Usage:     "List an artist's top tracks",
				Arguments: idArg("id"),
				Flags:     jsonFlags(),
				Action:    r.CatalogArtistTopTracks,
			},
		},
	}
}

// friendsCommand handles the social graph
func friendsCommand(r *Runner) *cli.Command {
	userArg := func() []cli.Argument { return []cli.Argument{&cli.StringArg{Name: "user"}} }
	formatFlags := func() []cli.Flag {
		return withFlags(jsonFlags(), &cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, csv or json",
			Value:   "text",
		})
	}

	return &cli.Command{
		Name:  "friends",
		Usage: "Manage friends and friend requests",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List your friends",
				Flags:  formatFlags(),
				Action: r.FriendsList,
			},
			{
				Name:   "requests",
				Usage:  "List friend requests waiting for you",
				Flags:  formatFlags(),
				Action: r.FriendsRequests,
			},
			{
				Name:      "search",
				Usage:     "Find users whose id starts with a prefix",
				Arguments: []cli.Argument{&cli.StringArg{Name: "prefix"}},
				Flags:     jsonFlags(),
				Action:    r.FriendsSearch,
			},
			{
				Name:      "add",
				Usage:     "Send a friend request",
				Arguments: userArg(),
				Action:    r.FriendsAdd,
			},
			{
				Name:      "approve",
				Usage:     "Approve a friend request",
				Arguments: userArg(),
				Action:    r.FriendsApprove,
			},
			{
				Name:      "deny",
				Usage:     "Deny a friend request",
				Arguments: userArg(),
				Action:    r.FriendsDeny,
			},
			{
				Name:      "remove",
				Usage:     "Remove a friend on both sides",
				Arguments: userArg(),
				Action:    r.FriendsRemove,
			},
			{
				Name:  "watch",
				Usage: "Print your friends (or requests) each time they change",
				Flags: withFlags(jsonFlags(), &cli.BoolFlag{
					Name:  "requests",
					Usage: "Watch incoming requests instead of friends",
				}),
				Action: r.FriendsWatch,
			},
			{
				Name:   "audit",
				Usage:  "Report half-finished approvals, removals and stale requests",
				Flags:  jsonFlags(),
				Action: r.FriendsAudit,
			},
			{
				Name:   "repair",
				Usage:  "Finish the half-finished mutations found by audit",
				Action: r.FriendsRepair,
			},
		},
	}
}

// reviewsCommand handles the current user's reviews
func reviewsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reviews",
		Usage: "Write, list and export reviews",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Review a track or album",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "rating",
						Aliases:  []string{"r"},
						Usage:    "Rating from 1 to 5",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "text",
						Aliases: []string{"m"},
						Usage:   "Review text",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "What the id refers to: track or album",
						Value: "album",
					},
				},
				Action: r.ReviewsAdd,
			},
			{
				Name:  "list",
				Usage: "List reviews by you or another user",
				Flags: withFlags(jsonFlags(), &cli.StringFlag{
					Name:  "user",
					Usage: "Author id (defaults to you)",
				}),
				Action: r.ReviewsList,
			},
			{
				Name:      "delete",
				Usage:     "Delete one of your reviews",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Delete without asking for confirmation",
					},
				},
				Action: r.ReviewsDelete,
			},
			{
				Name:  "export",
				Usage: "Export reviews to CSV, Markdown or text",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Usage: "Author id (defaults to you)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown or txt",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (file base for csv, directory for markdown)",
					},
					&cli.BoolFlag{
						Name:  "titles",
						Usage: "Look up item titles in the catalog",
						Value: true,
					},
				},
				Action: r.ReviewsExport,
			},
		},
	}
}

// metricsCommand exposes process metrics
func metricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Prometheus metrics",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve /metrics until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to server.metrics_addr, then server.host:9090)",
					},
				},
				Action: r.MetricsServe,
			},
		},
	}
}
