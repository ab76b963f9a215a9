package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/automarket/internal/forms"
	"github.com/rcliao/automarket/internal/gateway"
)

func init() {
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in to your organisation",
		Run:   runLogin,
	}
	login.Flags().StringP("email", "e", "", "Business email (required)")
	login.Flags().StringP("password", "p", "", "Password (default: $AUTOMARKET_PASSWORD)")
	login.MarkFlagRequired("email")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Run:   runLogout,
	}

	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new organisation",
		Long:  "Register a new organisation. The credibility document and website are scored before the account is created.",
		Run:   runRegister,
	}
	register.Flags().String("org", "", "Organisation name")
	register.Flags().StringP("email", "e", "", "Business email")
	register.Flags().String("website", "", "Website URL")
	register.Flags().StringP("password", "p", "", "Password")
	register.Flags().String("confirm", "", "Password confirmation")
	register.Flags().String("pdf", "", "Credibility document (PDF)")

	RootCmd.AddCommand(login, logout, register)
}

func runLogin(cmd *cobra.Command, args []string) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("AUTOMARKET_PASSWORD")
	}

	if err := (forms.Login{Email: email, Password: password}).Validate(); err != nil {
		exitErr("login", err)
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		exitErr("login", err)
	}
	defer e.Close()

	res, err := e.api.Login(cmd.Context(), email, password)
	if err != nil {
		exitErr("login", err)
	}
	if err := e.session.Begin(cmd.Context(), res.Token, res.Profile); err != nil {
		exitErr("login", err)
	}
	logger.Debug().Str("strategy", res.Strategy).Msg("token extracted")

	output(cmd.OutOrStdout(), map[string]any{"ok": true, "profile": res.Profile}, func(w io.Writer) {
		fmt.Fprintln(w, "Login successful")
	})
}

func runLogout(cmd *cobra.Command, args []string) {
	e, err := openEnv(cmd.Context())
	if err != nil {
		exitErr("logout", err)
	}
	defer e.Close()

	if err := e.session.End(cmd.Context()); err != nil {
		exitErr("logout", err)
	}
	output(cmd.OutOrStdout(), map[string]bool{"ok": true}, func(w io.Writer) {
		fmt.Fprintln(w, "Logged out")
	})
}

func runRegister(cmd *cobra.Command, args []string) {
	f := forms.Registration{}
	f.OrgName, _ = cmd.Flags().GetString("org")
	f.Email, _ = cmd.Flags().GetString("email")
	f.Website, _ = cmd.Flags().GetString("website")
	f.Password, _ = cmd.Flags().GetString("password")
	f.ConfirmPassword, _ = cmd.Flags().GetString("confirm")
	f.Document, _ = cmd.Flags().GetString("pdf")

	if err := f.Validate(); err != nil {
		exitErr("register", err)
	}

	doc, err := os.Open(f.Document)
	if err != nil {
		exitErr("register", err)
	}
	defer doc.Close()

	e, err := openEnv(cmd.Context())
	if err != nil {
		exitErr("register", err)
	}
	defer e.Close()

	scores, err := e.api.CheckCredibility(cmd.Context(), f.Website, filepath.Base(f.Document), doc)
	if err != nil {
		exitErr("register", err)
	}

	err = e.api.Register(cmd.Context(), gateway.RegisterRequest{
		OrgName:       f.OrgName,
		BusinessEmail: f.Email,
		Website:       f.Website,
		Password:      f.Password,
	})
	if err != nil {
		exitErr("register", err)
	}

	output(cmd.OutOrStdout(), map[string]any{"ok": true, "credibility": scores}, func(w io.Writer) {
		fmt.Fprintf(w, "Registration successful (document %.2f, website %.2f). Log in with `automarket login`.\n",
			scores.PDFScore, scores.WebScore)
	})
}
