package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/infobmscommunity-ai/kohen-caption/internal/api"
	"github.com/infobmscommunity-ai/kohen-caption/internal/auth"
	"github.com/infobmscommunity-ai/kohen-caption/internal/composer"
	"github.com/infobmscommunity-ai/kohen-caption/internal/config"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// signedInClient returns an API client carrying a saved session.
func signedInClient() (*apiClient, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	if err := client.requireSession(); err != nil {
		return nil, err
	}
	return client, nil
}

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out and manage your account",
}

// startSession posts credentials to path and saves the returned token.
func startSession(cmd *cobra.Command, path string, body any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmdContext(cmd), path, body)
	if err != nil {
		return err
	}
	var sess auth.Session
	if err := decodeJSON(resp, &sess); err != nil {
		return err
	}
	if err := config.SaveSessionToken(sess.Token); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	printSuccess("Signed in as %s", sess.User.Email)
	return nil
}

var authSignupCmd = &cobra.Command{
	Use:     "signup",
	Aliases: []string{"register"},
	Short:   "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		return startSession(cmd, "/auth/signup", map[string]string{
			"email":        email,
			"password":     password,
			"display_name": name,
		})
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		return startSession(cmd, "/auth/signin", map[string]string{
			"email":    email,
			"password": password,
		})
	},
}

var authLoginProviderCmd = &cobra.Command{
	Use:   "login-provider",
	Short: "Sign in with an identity-provider ID token",
	RunE: func(cmd *cobra.Command, args []string) error {
		idToken, _ := cmd.Flags().GetString("id-token")
		return startSession(cmd, "/auth/signin/provider", map[string]string{"id_token": idToken})
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.token == "" {
			printWarning("Not signed in")
			return nil
		}
		resp, err := client.post(cmdContext(cmd), "/auth/signout", nil)
		if err == nil {
			err = decodeJSON(resp, nil)
		}
		// The local token goes regardless; a stale one is useless.
		if clearErr := config.ClearSessionToken(); clearErr != nil {
			return fmt.Errorf("clearing session: %w", clearErr)
		}
		if err != nil {
			printWarning("Server sign-out failed: %v", err)
		}
		printSuccess("Signed out")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := signedInClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/auth/me")
		if err != nil {
			return err
		}
		var u storage.User
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}
		printStatus("Email", "%s", u.Email)
		printStatus("Name", "%s", u.DisplayName)
		printStatus("Provider", "%s", u.Provider)
		printStatus("User ID", "%s", u.ID)
		return nil
	},
}

var authResetCmd = &cobra.Command{
	Use:     "reset-password",
	Aliases: []string{"reset-request"},
	Short:   "Send a password reset link",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmdContext(cmd), "/auth/password-reset", map[string]string{"email": email})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Reset link sent to %s", email)
		return nil
	},
}

var authConfirmResetCmd = &cobra.Command{
	Use:     "confirm-reset",
	Aliases: []string{"reset-confirm"},
	Short:   "Set a new password using the code from the reset link",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		password, _ := cmd.Flags().GetString("password")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmdContext(cmd), "/auth/password-reset/confirm", map[string]string{
			"oob_code":     code,
			"new_password": password,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Password updated; sign in with `kohen auth login`")
		return nil
	},
}

func init() {
	authSignupCmd.Flags().String("email", "", "account email")
	authSignupCmd.Flags().String("password", "", "account password")
	authSignupCmd.Flags().String("name", "", "display name")
	authSignupCmd.MarkFlagRequired("email")
	authSignupCmd.MarkFlagRequired("password")

	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password")
	authLoginCmd.MarkFlagRequired("email")
	authLoginCmd.MarkFlagRequired("password")

	authLoginProviderCmd.Flags().String("id-token", "", "ID token issued by the identity provider")
	authLoginProviderCmd.MarkFlagRequired("id-token")

	authResetCmd.Flags().String("email", "", "account email")
	authResetCmd.MarkFlagRequired("email")

	authConfirmResetCmd.Flags().String("code", "", "oobCode from the reset link")
	authConfirmResetCmd.Flags().String("password", "", "new password")
	authConfirmResetCmd.MarkFlagRequired("code")
	authConfirmResetCmd.MarkFlagRequired("password")

	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLoginProviderCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authResetCmd)
	authCmd.AddCommand(authConfirmResetCmd)
}

// --- generate ---

func toneKeys() string {
	keys := make([]string, len(composer.Tones))
	for i, t := range composer.Tones {
		keys[i] = t.Key()
	}
	return strings.Join(keys, ", ")
}

func selectionFromFlags(cmd *cobra.Command) (map[string]string, error) {
	product, _ := cmd.Flags().GetString("product")
	strategy, _ := cmd.Flags().GetString("strategy")
	brain, _ := cmd.Flags().GetString("brain")
	tone, _ := cmd.Flags().GetString("tone")
	instruction, _ := cmd.Flags().GetString("instruction")

	t, err := composer.ParseTone(tone)
	if err != nil {
		return nil, fmt.Errorf("%w (choose one of: %s)", err, toneKeys())
	}
	return map[string]string{
		"product_id":         product,
		"strategy_id":        strategy,
		"brain_id":           brain,
		"tone":               string(t),
		"custom_instruction": instruction,
	}, nil
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a caption for a product",
	Long: `Generate a caption for a product and save it to history.

Examples:
  kohen generate --product <id> --tone luxury
  kohen generate --product <id> --strategy <id> --brain <id> --instruction "Sebut promo gratis ongkir"
  kohen generate --product <id> --brain none
  kohen generate --product <id> --preview`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		client, err := signedInClient()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		if preview, _ := cmd.Flags().GetBool("preview"); preview {
			resp, err := client.post(ctx, "/compose", sel)
			if err != nil {
				return err
			}
			var out struct {
				Prompt          string `json:"prompt"`
				EstimatedTokens int    `json:"estimated_tokens"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			fmt.Fprintln(stdout, out.Prompt)
			printStatus("Estimated tokens", "%d", out.EstimatedTokens)
			return nil
		}

		printStep("Generating caption (%s)...", sel["tone"])
		resp, err := client.post(ctx, "/studio/generate", sel)
		if err != nil {
			return err
		}
		var c studio.Caption
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}

		if copyOnly, _ := cmd.Flags().GetBool("copy"); copyOnly {
			fmt.Fprintln(stdout, c.CopyText)
			return nil
		}
		printCaption(c)
		printSuccess("Saved to history as %s", c.ID)
		return nil
	},
}

func printCaption(c studio.Caption) {
	header := c.ProductName
	if c.StoreName != "" {
		header = c.StoreName + " / " + header
	}
	fmt.Fprintln(stdout, colorize(colorBold, header))
	meta := c.Tone
	if c.StrategyTitle != "" {
		meta += " · " + c.StrategyTitle
	}
	fmt.Fprintln(stdout, colorize(colorCyan, meta))
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, c.CopyText)
}

func init() {
	generateCmd.Flags().String("product", "", "catalog product id")
	generateCmd.Flags().String("strategy", "", "strategy id (optional)")
	generateCmd.Flags().String("brain", "", "persona id, or none for no persona (default: newest persona)")
	generateCmd.Flags().String("tone", "", "tone: "+toneKeys())
	generateCmd.Flags().String("instruction", "", "extra instruction for this caption")
	generateCmd.Flags().Bool("preview", false, "print the prompt instead of generating")
	generateCmd.Flags().Bool("copy", false, "print only the caption and hashtags")
	generateCmd.MarkFlagRequired("product")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse generated captions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated captions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := signedInClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), fmt.Sprintf("/captions?limit=%d", limit))
		if err != nil {
			return err
		}
		var captions []studio.Caption
		if err := decodeJSON(resp, &captions); err != nil {
			return err
		}
		if asJSON {
			return printJSON(captions)
		}
		if len(captions) == 0 {
			printWarning("No captions yet")
			return nil
		}
		for _, c := range captions {
			printRow(c.ID, c.ProductName, c.CreatedAt.Local().Format("2006-01-02 15:04")+"  "+c.GeneratedCaption.GeneratedCaption)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one generated caption",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := signedInClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/captions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var c studio.Caption
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printCaption(c)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a generated caption",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		return deleteEntry(cmd, "/captions", args[0], confirm)
	},
}

// deleteEntry deletes one record. Without confirm the server answers with
// its confirmation prompt, which is shown instead.
func deleteEntry(cmd *cobra.Command, base, id string, confirm bool) error {
	client, err := signedInClient()
	if err != nil {
		return err
	}
	path := base + "/" + url.PathEscape(id)
	if confirm {
		path += "?confirm=true"
	}
	resp, err := client.delete(cmdContext(cmd), path)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Code == api.CodeConfirmationRequired {
			printWarning("%s Re-run with --confirm.", ae.Message)
			return nil
		}
		return err
	}
	printSuccess("Deleted %s", id)
	return nil
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of captions")
	historyListCmd.Flags().Bool("json", false, "print as JSON")
	historyDeleteCmd.Flags().Bool("confirm", false, "delete without asking")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (secrets hidden)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.Settings(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.Set(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.SettableKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
