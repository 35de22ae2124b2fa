package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/fakeyudi/contractdesk/internal/auth"
)

var (
	loginEmail    string
	loginPassword string
	loginSSO      bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password, or with Azure AD (--sso)",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if loginSSO {
			conf := auth.DeviceConfig(a.cfg.AzureAD.ClientID, a.cfg.AzureAD.TenantID)
			c, err := auth.DeviceLogin(cmd.Context(), conf, func(da *oauth2.DeviceAuthResponse) {
				cmd.Printf("To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
			})
			if err != nil {
				return err
			}
			if err := a.creds.Save(c); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			cmd.Printf("Logged in as %s.\n", c.Email)
			return nil
		}

		in := bufio.NewReader(cmd.InOrStdin())
		email, password := loginEmail, loginPassword
		var err error
		if email == "" {
			if email, err = ask(cmd, in, "Email"); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = askSecret(cmd, in, "Password"); err != nil {
				return err
			}
		}
		if err := validateLogin(email, password); err != nil {
			return err
		}

		res, err := a.api.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		c := &auth.Credentials{Token: res.Token, Email: res.User.Email, Role: res.Role, Source: "password"}
		if err := a.creds.Save(c); err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
		cmd.Printf("Logged in as %s.\n", c.Email)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.creds.Clear(); err != nil {
			return err
		}
		cmd.Println("Logged out.")
		return nil
	}),
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// validateLogin rejects input the backend would refuse anyway.
func validateLogin(email, password string) error {
	err := validate.Struct(loginInput{Email: email, Password: password})
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	for _, f := range fields {
		if f.Tag() == "required" {
			return errors.New("email and password are required")
		}
	}
	return fmt.Errorf("invalid email address %q", email)
}

// ask prints prompt and reads one trimmed line.
func ask(cmd *cobra.Command, r *bufio.Reader, prompt string) (string, error) {
	cmd.Printf("%s: ", prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askSecret reads a line without echo when stdin is a terminal.
func askSecret(cmd *cobra.Command, r *bufio.Reader, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(f.Fd()) {
		cmd.Printf("%s: ", prompt)
		b, err := term.ReadPassword(f.Fd())
		cmd.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return ask(cmd, r, prompt)
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when omitted)")
	loginCmd.Flags().BoolVar(&loginSSO, "sso", false, "sign in with Azure AD device code")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
