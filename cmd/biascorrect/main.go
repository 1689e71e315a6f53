package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/biascorrect/internal/store"
)

type CLI struct {
	DB string `help:"Path to SQLite database." default:"data/biascorrect.db" env:"BIASCORRECT_DB" type:"path"`

	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API."`
	Import   ImportCmd   `cmd:"" help:"Import a daily CSV file as a dataset."`
	Fetch    FetchCmd    `cmd:"" help:"Download a daily CSV file over FTP and import it."`
	Correct  CorrectCmd  `cmd:"" help:"Correct a simulated dataset against observations."`
	Runs     RunsCmd     `cmd:"" help:"List recent correction runs."`
	Datasets DatasetsCmd `cmd:"" help:"List stored datasets."`
	Imports  ImportsCmd  `cmd:"" help:"List recent failed imports."`
	Raw      RawCmd      `cmd:"" help:"Write a stored raw import file."`
	Prune    PruneCmd    `cmd:"" help:"Delete old raw import files."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("biascorrect"),
		kong.Description("Quantile-mapping bias correction of simulated daily climate series."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
	)

	st, closeDB, err := openStore(cli.DB)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeDB()

	if err := kctx.Run(st); err != nil {
		log.Fatalf("%s: %v", kctx.Command(), err)
	}
}

func openStore(path string) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() { db.Close() }, nil
}
