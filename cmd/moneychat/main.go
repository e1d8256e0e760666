package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/app"
	"github.com/gmsas95/moneychat/internal/config"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	cliMode    = flag.Bool("cli", false, "Run in CLI mode (one-shot or interactive)")
	message    = flag.String("m", "", "Message to send (CLI mode)")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "import":
			os.Exit(runImport(os.Args[2:]))
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("moneychat version %s\n", version)
			return
		}
	}

	flag.Parse()

	application, cleanup := initApp(*configPath, *dataDir)
	defer cleanup()

	ctx := context.Background()
	if *cliMode || *message != "" {
		if err := application.RunCLI(ctx, *message, os.Stdin, os.Stdout); err != nil {
			application.Logger.Error("CLI failed", zap.Error(err))
			cleanup()
			os.Exit(1)
		}
		return
	}

	if err := application.RunServer(ctx); err != nil {
		application.Logger.Error("Server stopped with error", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	data := fs.String("data", "", "Path to data directory")
	file := fs.String("file", "", "Spreadsheet (CSV) to import")
	user := fs.String("user", "", "User to import for (defaults to cli.user_id)")
	yes := fs.Bool("yes", false, "Import without asking for confirmation")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: moneychat import -file statement.csv [-yes] [-user id]")
		return 2
	}

	application, cleanup := initApp(*cfgPath, *data)
	defer cleanup()

	err := application.RunImport(context.Background(), app.ImportOptions{
		Path:   *file,
		UserID: *user,
		Yes:    *yes,
	}, os.Stdin, os.Stdout)
	if err != nil {
		application.Logger.Error("Import failed", zap.Error(err))
		return 1
	}
	return 0
}

func initApp(cfgPath, data string) (*app.App, func()) {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(cfgPath, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, level, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting moneychat",
		zap.String("version", version),
		zap.String("config", cfg.File()),
		zap.String("storage", cfg.Storage.Driver),
	)

	st, err := store.New(cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err := app.New(context.Background(), cfg, st, metrics.Default(), logger, level, version)
	if err != nil {
		st.Close()
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
		logger.Sync()
	}
	return application, cleanup
}

func newLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.JSON {
		zc = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zc.Level = lvl
	}

	logger, err := zc.Build()
	return logger, zc.Level, err
}

func printHelp() {
	fmt.Println(`moneychat - a conversational front end to your personal finance ledger

Usage:
  moneychat                         Run the HTTP server
  moneychat -m "Spent $12 on lunch" Send one message
  moneychat -cli                    Interactive mode
  moneychat import -file x.csv      Preview and import a spreadsheet
  moneychat version                 Print the version

Flags:
  -config path   Config file (default <data>/moneychat.yaml)
  -data dir      Data directory (default ~/.local/share/moneychat)

Environment:
  GEMINI_API_KEY / OPENAI_API_KEY / OPENROUTER_API_KEY   Completion provider keys
  MONEYCHAT_*                                            Any config key, e.g. MONEYCHAT_SERVER_PORT`)
}
