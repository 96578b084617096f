package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mchmarny/permitctl/pkg/auth"
	"github.com/urfave/cli/v3"
)

const clientID = "f1b500ebdf533aa8a3e2"

var (
	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store credentials in the OS keychain",
		Commands: []*cli.Command{
			{
				Name:   "github",
				Usage:  "Authenticate to GitHub to read requirements from private repositories",
				Action: cmdAuthGitHub,
			},
			{
				Name:   "llm",
				Usage:  "Save the LlamaStack API key (read from stdin)",
				Action: cmdAuthLLM,
			},
			{
				Name:      "logout",
				Usage:     "Remove stored credentials",
				ArgsUsage: "[github|llm]",
				Action:    cmdAuthLogout,
			},
		},
	}
)

func cmdAuthGitHub(ctx context.Context, _ *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	flow := &auth.DeviceFlow{ClientID: clientID}
	code, err := flow.DeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("getting device code: %w", err)
	}

	fmt.Printf("1). Copy this code: %s\n", code.UserCode)
	fmt.Printf("2). Navigate to this URL in your browser to authenticate: %s\n", code.VerificationURL)
	fmt.Println("3). Waiting for authorization...")

	token, err := flow.Token(ctx, code)
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	if err := credentials(cfg).Set(auth.KeyGitHubToken, token.AccessToken); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Println("Token saved")
	return nil
}

func cmdAuthLLM(ctx context.Context, _ *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	fmt.Print("LlamaStack API key: ")
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && key == "" {
		return fmt.Errorf("reading API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}

	if err := credentials(cfg).Set(auth.KeyLLMAPIKey, key); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}
	fmt.Println("API key saved")
	return nil
}

func cmdAuthLogout(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	keys := []string{auth.KeyGitHubToken, auth.KeyLLMAPIKey}
	switch cmd.Args().First() {
	case "":
	case "github":
		keys = keys[:1]
	case "llm":
		keys = keys[1:]
	default:
		return cli.ShowSubcommandHelp(cmd)
	}

	store := credentials(cfg)
	for _, k := range keys {
		if err := store.Delete(k); err != nil {
			return err
		}
	}
	fmt.Println("Credentials removed")
	return nil
}
