/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deckofthoughts/apiserver/internal/auth"
	"github.com/deckofthoughts/apiserver/internal/db"
	"github.com/deckofthoughts/apiserver/internal/services"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// userCmd represents the user command.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Create an account",
	Long: `Create an account with the same rules as POST /register.

The password is prompted for without echo. When stdin is not a terminal the
first line of stdin is used instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		password, err := readPassword(os.Stdin, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		authService, err := services.NewAuthService(
			store.NewUserRepository(conn),
			auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
			services.PasswordPolicy{MinLength: cfg.Auth.PasswordMinLength, BcryptCost: cfg.Auth.BcryptCost},
		)
		if err != nil {
			return err
		}
		user, err := authService.Register(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}

		log.Info("user created", "id", user.ID, "username", user.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
}

func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return readLine(in)
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
