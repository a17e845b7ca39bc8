// Command userctl manages accounts directly against the database.
//
//	userctl create -email admin@example.com -password ... -first Ada -last Lovelace -role 3
//	userctl list
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"hometracker.app/internal/auth"
	"hometracker.app/internal/config"
	"hometracker.app/internal/obs"
	"hometracker.app/internal/store/pg"
)

func main() {
	log := obs.Logger()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: userctl [create|list] [flags]")
		os.Exit(2)
	}
	if err := run(log, os.Args[1], os.Args[2:]); err != nil {
		log.WithError(err).Fatalf("userctl %s", os.Args[1])
	}
}

func run(log *logrus.Logger, cmd string, args []string) error {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dsn := fs.String("dsn", cfg.PGDSN, "PostgreSQL DSN")
	var (
		email, password, first, last *string
		role                         *int
	)
	if cmd == "create" {
		email = fs.String("email", "", "account email")
		password = fs.String("password", "", "account password")
		first = fs.String("first", "", "first name")
		last = fs.String("last", "", "last name")
		role = fs.Int("role", auth.RoleAdmin, "role id (1 none, 2 member, 3 admin)")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return fmt.Errorf("missing DSN: provide via -dsn or HOMETRACKER_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
		Leeway:   cfg.Token.Leeway,
	})
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store, tokens,
		auth.WithHasher(auth.NewHasher(1, auth.WithIterations(cfg.Hash.Iterations))),
		auth.WithLogger(log),
		auth.WithMaxRegistrationRole(auth.RoleAdmin),
	)
	if err != nil {
		return err
	}

	switch cmd {
	case "create":
		session, err := svc.Register(ctx, auth.Registration{
			LastName:  *last,
			FirstName: *first,
			Email:     *email,
			Password:  *password,
			RoleID:    *role,
		})
		if err != nil {
			return err
		}
		fmt.Println(session.Profile.ID)
		return nil
	case "list":
		profiles, err := svc.ListProfiles(ctx)
		if err != nil {
			return err
		}
		return printProfiles(os.Stdout, profiles)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printProfiles(w io.Writer, profiles []auth.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tJOINED")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%d\t%s\n",
			p.ID, p.Email, p.FirstName, p.LastName, p.RoleID, p.InscriptionDate.Format(time.DateOnly))
	}
	return tw.Flush()
}
