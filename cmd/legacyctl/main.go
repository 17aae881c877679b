package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/catalog"
	"github.com/rhsenso/erp/internal/db"
	"github.com/rhsenso/erp/internal/repo"
	"github.com/rhsenso/erp/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	queries := repo.New(pool)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "migrate":
		err = runMigrate(ctx, pool)
	case "sistemas":
		err = printJSON(catalog.NewService(queries).Sistemas(ctx))
	case "funcoes":
		if len(args) != 1 {
			err = errors.New("uso: legacyctl funcoes <sistema>")
			break
		}
		err = printJSON(catalog.NewService(queries).Funcoes(ctx, args[0]))
	case "permissoes":
		err = runPermissoes(ctx, queries, args)
	case "check":
		err = runCheck(ctx, queries, args)
	case "revoke":
		err = runRevoke(ctx, queries, args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		pool.Close()
		log.Fatal().Err(err).Str("comando", cmd).Msg("falha ao executar comando")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "legacyctl: inspeção das permissões legadas")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  legacyctl migrate")
	fmt.Fprintln(os.Stderr, "  legacyctl sistemas")
	fmt.Fprintln(os.Stderr, "  legacyctl funcoes RHU")
	fmt.Fprintln(os.Stderr, "  legacyctl permissoes [--sistema RHU] MARIA")
	fmt.Fprintln(os.Stderr, "  legacyctl check [--acao I] [--restricao C] MARIA RHU RHU_FERIAS")
	fmt.Fprintln(os.Stderr, "  legacyctl revoke MARIA        (requer REDIS_URL)")
}

func runMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("nenhuma migration pendente")
		return nil
	}
	for _, name := range applied {
		fmt.Println("aplicada:", name)
	}
	return nil
}

func runPermissoes(ctx context.Context, queries *repo.Queries, args []string) error {
	fs := flag.NewFlagSet("permissoes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sistema := fs.String("sistema", "", "filtra por sistema (vazio = todos)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("informe o usuário")
	}

	permissions := service.NewPermissionService(queries, nil, 0)
	return printJSON(permissions.List(ctx, fs.Arg(0), *sistema))
}

func runCheck(ctx context.Context, queries *repo.Queries, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	acao := fs.String("acao", "", "ação do botão (I, A, E, C)")
	restricao := fs.String("restricao", "", "restrição exigida (L, P, C)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errors.New("informe usuário, sistema e função")
	}

	permissions := service.NewPermissionService(queries, nil, 0)
	return printJSON(permissions.Check(ctx, fs.Arg(0), service.CheckRequest{
		CdSistema: fs.Arg(1),
		CdFuncao:  fs.Arg(2),
		Acao:      strings.ToUpper(*acao),
		Restricao: strings.ToUpper(*restricao),
	}))
}

func runRevoke(ctx context.Context, queries *repo.Queries, args []string) error {
	if len(args) != 1 {
		return errors.New("informe o usuário")
	}

	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" {
		return errors.New("defina REDIS_URL")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	permissions := service.NewPermissionService(queries, redisClient, time.Minute)
	authService := service.NewAuthService(queries, redisClient, nil, nil, permissions, 0)

	n, err := authService.RevokeAll(ctx, args[0], service.RequestMeta{IP: "cli", UserAgent: "legacyctl"}, "admin")
	if err != nil {
		return err
	}
	fmt.Printf("%d sessões revogadas para %s\n", n, strings.ToUpper(args[0]))
	return nil
}

func printJSON(v any, err error) error {
	if err != nil {
		return err
	}
	encoded, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(encoded))
	return nil
}
