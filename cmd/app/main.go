package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dagoof/sc-buildorders/internal/adapters/db/memory"
	sqliteadapter "github.com/dagoof/sc-buildorders/internal/adapters/db/sqlite"
	httpadapter "github.com/dagoof/sc-buildorders/internal/adapters/http"
	rpcadapter "github.com/dagoof/sc-buildorders/internal/adapters/rpcjson"
	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
	"github.com/dagoof/sc-buildorders/internal/trie"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "buildorders",
		Usage: "StarCraft build order server and CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("BUILDORDERS_LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json", Sources: cli.EnvVars("BUILDORDERS_LOG_FORMAT")},
			&cli.StringFlag{Name: "catalog-dir", Usage: "directory of race YAML files (defaults to the embedded catalog)", Sources: cli.EnvVars("BUILDORDERS_CATALOG_DIR")},
		},
		Commands: []*cli.Command{
			serverCommand(),
			catalogCommand(),
			ordersCommand(),
			buildsCommand(),
			configCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type serverOptions struct {
	Addr       string
	RPCSocket  string
	Store      string
	DBPath     string
	CatalogDir string
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP and JSON-RPC servers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address", Sources: cli.EnvVars("BUILDORDERS_ADDR")},
			&cli.StringFlag{Name: "rpc-socket", Value: defaultSocket, Usage: "JSON-RPC unix socket path", Sources: cli.EnvVars("BUILDORDERS_RPC_SOCKET")},
			&cli.StringFlag{Name: "store", Value: "sqlite", Usage: "sqlite or memory", Sources: cli.EnvVars("BUILDORDERS_STORE")},
			&cli.StringFlag{Name: "db-path", Value: "buildorders.db", Usage: "SQLite database path", Sources: cli.EnvVars("BUILDORDERS_DB_PATH")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := newLogger(c.String("log-level"), c.String("log-format"), os.Stderr)
			return runServer(ctx, logger, serverOptions{
				Addr:       c.String("addr"),
				RPCSocket:  c.String("rpc-socket"),
				Store:      c.String("store"),
				DBPath:     c.String("db-path"),
				CatalogDir: c.String("catalog-dir"),
			})
		},
	}
}

func runServer(ctx context.Context, logger *slog.Logger, opts serverOptions) error {
	cat, err := loadCatalog(opts.CatalogDir)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "races", cat.Races(), "entities", cat.Len())

	trieRepo, buildRepo, closeStore, err := openStore(ctx, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	service := application.NewBuildService(cat, buildRepo, trie.New(trieRepo, logger), logger)

	router := httpadapter.NewRouter(service, logger)
	srv := &http.Server{Addr: opts.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(opts.RPCSocket, service, logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info("json-rpc listening", "socket", "unix://"+opts.RPCSocket)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the repositories for opts.Store and a func that releases
// the underlying database.
func openStore(ctx context.Context, logger *slog.Logger, opts serverOptions) (domain.TrieRepository, domain.BuildRepository, func() error, error) {
	switch opts.Store {
	case "memory":
		logger.Warn("using in-memory store, builds are lost on exit")
		repo := memory.NewRepository()
		return repo, repo, func() error { return nil }, nil
	case "sqlite":
		db, err := sqliteadapter.Open(opts.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(ctx, db, logger); err != nil {
			_ = sqlDB.Close()
			return nil, nil, nil, err
		}
		repo := sqliteadapter.NewRepository(db)
		return repo, repo, sqlDB.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q (want sqlite or memory)", opts.Store)
	}
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	c, err := catalog.Load(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", dir, err)
	}
	return c, nil
}

// localService answers catalog and order queries without a running server.
func localService(c *cli.Command) (*application.BuildService, error) {
	cat, err := loadCatalog(c.String("catalog-dir"))
	if err != nil {
		return nil, err
	}
	logger := newLogger(c.String("log-level"), c.String("log-format"), os.Stderr)
	repo := memory.NewRepository()
	return application.NewBuildService(cat, repo, trie.New(repo, logger), logger), nil
}

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect the entity catalog",
		Commands: []*cli.Command{
			{
				Name:  "races",
				Usage: "List races",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					service, err := localService(c)
					if err != nil {
						return err
					}
					races := service.Races()
					if c.Bool("json") {
						return printJSON(races)
					}
					for _, r := range races {
						fmt.Println(r)
					}
					return nil
				},
			},
			{
				Name:  "entities",
				Usage: "List a race's entities",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "race", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					service, err := localService(c)
					if err != nil {
						return err
					}
					items, err := service.Entities(c.String("race"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printEntities(items)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show one entity",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("entity name is required")
					}
					service, err := localService(c)
					if err != nil {
						return err
					}
					v, err := service.Entity(name)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(v)
					}
					printEntity(v)
					return nil
				},
			},
		},
	}
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:  "orders",
		Usage: "Check build orders offline",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Replay units in order and report the resulting state",
				ArgsUsage: "UNIT...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "race", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					service, err := localService(c)
					if err != nil {
						return err
					}
					v, err := service.Validate(c.String("race"), c.Args().Slice())
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(v)
					}
					printOrder(v)
					return nil
				},
			},
			{
				Name:      "tech",
				Usage:     "Show what can be built after the given units",
				ArgsUsage: "UNIT...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "race", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					service, err := localService(c)
					if err != nil {
						return err
					}
					v, err := service.Tech(c.String("race"), c.Args().Slice())
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(v)
					}
					printTech(v)
					return nil
				},
			},
		},
	}
}

func buildsCommand() *cli.Command {
	return &cli.Command{
		Name:  "builds",
		Usage: "Stored build commands (requires a running server)",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a build; without units the race's opening is used",
				ArgsUsage: "[UNIT...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "race", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out application.BuildSummary
					if err := doCreateBuild(ctx, cfg, c.String("race"), c.Args().Slice(), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printBuild(out)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List builds, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "race"},
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []application.BuildRecord
					if err := doListBuilds(ctx, cfg, c.String("race"), int(c.Int("limit")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printBuildRecords(out)
					return nil
				},
			},
			buildKeyCommand("show", "Show a build", func(ctx context.Context, cfg cliConfig, key string, c *cli.Command) error {
				var out application.BuildSummary
				if err := doGetBuild(ctx, cfg, key, &out); err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printBuild(out)
				return nil
			}),
			{
				Name:      "add",
				Usage:     "Append a unit to a build",
				ArgsUsage: "KEY UNIT",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return errors.New("usage: builds add KEY UNIT")
					}
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out application.BuildSummary
					if err := doAddUnit(ctx, cfg, c.Args().Get(0), c.Args().Get(1), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printBuild(out)
					return nil
				},
			},
			buildKeyCommand("branch", "Start a new build from another build's current state", func(ctx context.Context, cfg cliConfig, key string, c *cli.Command) error {
				var out application.BuildSummary
				if err := doBranch(ctx, cfg, key, &out); err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printBuild(out)
				return nil
			}),
			buildKeyCommand("features", "Show the distinguishing steps of a build", func(ctx context.Context, cfg cliConfig, key string, c *cli.Command) error {
				var out []application.Feature
				if err := doFeatures(ctx, cfg, key, &out); err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printFeatures(out)
				return nil
			}),
			buildKeyCommand("tech", "Show what a build can construct next", func(ctx context.Context, cfg cliConfig, key string, c *cli.Command) error {
				var out application.TechSummary
				if err := doBuildTech(ctx, cfg, key, &out); err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printTech(out)
				return nil
			}),
			{
				Name:      "events",
				Usage:     "Show a build's history, newest first",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					key := c.Args().First()
					if key == "" {
						return errors.New("build key is required")
					}
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []application.BuildEvent
					if err := doListEvents(ctx, cfg, key, int(c.Int("limit")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printEvents(out)
					return nil
				},
			},
		},
	}
}

func buildKeyCommand(name, usage string, run func(ctx context.Context, cfg cliConfig, key string, c *cli.Command) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "KEY",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
		Action: func(ctx context.Context, c *cli.Command) error {
			key := c.Args().First()
			if key == "" {
				return errors.New("build key is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(ctx, cfg, key, c)
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Client connection settings",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store transport settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds", Usage: "uds or http"},
					&cli.StringFlag{Name: "server", Value: defaultServer},
					&cli.StringFlag{Name: "socket", Value: defaultSocket},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					transport := c.String("transport")
					if transport != "uds" && transport != "http" {
						return fmt.Errorf("unknown transport %q (want uds or http)", transport)
					}
					cfg := cliConfig{Transport: transport, Server: c.String("server"), Socket: c.String("socket")}
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("using %s transport\n", cfg.Transport)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective settings",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					printKV([][2]string{{"transport", cfg.Transport}, {"server", cfg.Server}, {"socket", cfg.Socket}})
					return nil
				},
			},
		},
	}
}
