// Command statusctl is the operator tool for the status page: it mints
// monitor and admin tokens, checks the service catalog and applies it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/auth"
	"github.com/chainstatus/statuspage/internal/config"
	"github.com/chainstatus/statuspage/internal/database"
	"github.com/chainstatus/statuspage/internal/ledger"
)

var errUsage = errors.New("usage")

func main() {
	cfg := config.Load()
	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "statusctl:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}

	switch args[0] {
	case "mint-token":
		return mintToken(cfg, args[1:], stdout, stderr)
	case "check-catalog":
		return checkCatalog(cfg, args[1:], stdout, stderr)
	case "seed":
		return seed(ctx, cfg, args[1:], stdout, stderr)
	case "migrate":
		return migrate(ctx, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: statusctl <command> [flags]

Commands:
  mint-token     sign a monitor or admin token
  check-catalog  validate the service catalog without touching the database
  seed           apply the service catalog to the database
  migrate        apply database migrations
`)
}

func mintToken(cfg config.AppConfig, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "token subject, e.g. probe-eu-west (required)")
	role := fs.String("role", string(auth.RoleMonitor), "monitor or admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *subject == "" {
		fmt.Fprintln(stderr, "-subject is required")
		return errUsage
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}
	if cfg.InsecureSigningKey() {
		fmt.Fprintln(stderr, "warning: signing with the development key")
	}

	token, expiresAt, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWT.SigningKey,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
	}).GenerateToken(*subject, r, *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func catalogFlag(fs *flag.FlagSet, cfg config.AppConfig) *string {
	return fs.String("catalog", cfg.CatalogPath, "path to the service catalog")
}

func checkCatalog(cfg config.AppConfig, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check-catalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := catalogFlag(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cat, err := ledger.LoadCatalog(*path)
	if err != nil {
		return err
	}
	for _, entry := range cat.Services {
		visibility := "public"
		if entry.Hidden {
			visibility = "hidden"
		}
		fmt.Fprintf(stdout, "%-24s %-10s %s\n", entry.Slug, entry.Category, visibility)
	}
	fmt.Fprintf(stdout, "%d services ok\n", len(cat.Services))
	return nil
}

func seed(ctx context.Context, cfg config.AppConfig, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := catalogFlag(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cat, err := ledger.LoadCatalog(*path)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	created, err := ledger.New(ledger.Config{
		Repository: ledger.NewPostgresRepository(pool),
		Logger:     zerolog.New(stderr).With().Timestamp().Logger(),
	}).Seed(ctx, cat)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d services in catalog, %d created\n", len(cat.Services), created)
	return nil
}

func migrate(ctx context.Context, stdout io.Writer) error {
	pool, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "migrations applied")
	return nil
}
