// Command adduser creates an account from the command line, for seeding a
// fresh database without going through the registration page.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"spendbook/internal/auth"
	"spendbook/internal/config"
	"spendbook/internal/storage"

	"golang.org/x/term"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("adduser", flag.ContinueOnError)
	flags.SetOutput(stderr)

	name := flags.String("name", "", "Display name")
	email := flags.String("email", "", "Login email")
	passwordFlag := flags.String("password", "", "Password (optional, will prompt if omitted)")
	dsn := flags.String("db", "", "Database path (defaults to DATABASE_URL)")

	if err := flags.Parse(args); err != nil {
		return err
	}

	var missing []string
	if strings.TrimSpace(*name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(*email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		fmt.Fprintln(stdout, "Usage: adduser -name <name> -email <email> [-password <password>] [-db <path>]")
		flags.PrintDefaults()
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	if *dsn == "" {
		*dsn = config.Load().DatabaseURL
	}
	if *dsn == "" {
		return errors.New("no database: pass -db or set DATABASE_URL")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password cannot be empty")
	}

	db, err := storage.NewDB(*dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	_, err = db.GetUserByEmail(ctx, *email)
	switch {
	case err == nil:
		return fmt.Errorf("user %s already exists", storage.NormalizeEmail(*email))
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := db.CreateUser(ctx, strings.TrimSpace(*name), *email, hash)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return fmt.Errorf("user %s already exists", storage.NormalizeEmail(*email))
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Email, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
