package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored BistroHQ session",
}

var (
	authEmail    string
	authPassword string
)

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and persist the session tokens",
	Example: `  bistroctl auth login -e owner@trattoria.example
  BISTRO_PASSWORD=... bistroctl auth login -e owner@trattoria.example`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if authEmail == "" {
			return fmt.Errorf("--email is required")
		}
		password := authPassword
		if password == "" {
			password = os.Getenv("BISTRO_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		if err := deps.Client.Login(cmd.Context(), authEmail, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Printf("✓ Signed in as %s\n", authEmail)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Client.Logout(); err != nil {
			return err
		}
		fmt.Println("✓ Signed out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session's subject and expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		claims, err := deps.Tokens.Claims()
		if err != nil {
			fmt.Println("not signed in")
			return nil
		}
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			fmt.Printf("subject  %s\n", sub)
		}
		if tenant, ok := claims["tenant"].(string); ok && tenant != "" {
			fmt.Printf("tenant   %s\n", tenant)
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			state := "valid"
			if time.Now().After(exp.Time) {
				state = "EXPIRED"
			}
			fmt.Printf("expires  %s (%s)\n", exp.Time.Local().Format(time.RFC3339), state)
		}
		return nil
	},
}

func init() {
	authLoginCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authLoginCmd.Flags().StringVarP(&authPassword, "password", "p", "",
		"account password (prefer BISTRO_PASSWORD or the interactive prompt)")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
