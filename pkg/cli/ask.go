package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/mchmarny/permitctl/pkg/llm"
	"github.com/urfave/cli/v3"
)

var (
	errSessionNotFound = errors.New("session not found")

	sessionFlag = &cli.StringFlag{
		Name:    "session",
		Aliases: []string{"s"},
		Usage:   "Continue an existing question session (default: start a new one)",
	}

	askCmd = &cli.Command{
		Name:            "ask",
		Usage:           "Ask a permitting question answered from the retrieved regulations",
		ArgsUsage:       "<question>",
		HideHelpCommand: true,
		Flags:           []cli.Flag{sessionFlag, llmEndpointFlag, llmAPIKeyFlag, vectorDBFlag},
		Action:          cmdAsk,
	}
)

// asker answers a question following the earlier messages of its session.
type asker interface {
	Ask(ctx context.Context, history []llm.Message, prompt string) (*llm.Answer, error)
}

type queryResponse struct {
	SessionID string   `json:"session_id" yaml:"session_id"`
	Answer    string   `json:"answer" yaml:"answer"`
	Context   []string `json:"context" yaml:"context"`
}

// askQuestion answers prompt within sessionID, or a new session when
// sessionID is empty, and records both turns.
func askQuestion(ctx context.Context, db *sql.DB, a asker, sessionID, prompt string) (*queryResponse, error) {
	history := []llm.Message{}
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else {
		s, err := data.GetSession(db, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		if s == nil {
			return nil, fmt.Errorf("%w: %s", errSessionNotFound, sessionID)
		}
		for _, m := range s.Messages {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	ans, err := a.Ask(ctx, history, prompt)
	if err != nil {
		return nil, err
	}

	if err := data.AppendMessages(db, sessionID,
		data.Message{Role: llm.RoleUser, Content: ans.Prompt},
		data.Message{Role: llm.RoleAssistant, Content: ans.Answer},
	); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	return &queryResponse{SessionID: sessionID, Answer: ans.Answer, Context: ans.Context}, nil
}

func cmdAsk(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return cli.ShowSubcommandHelp(cmd)
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(ctx, llmConfig(cmd, cfg))
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	prompt := strings.Join(cmd.Args().Slice(), " ")
	res, err := askQuestion(ctx, cfg.DB, client, cmd.String(sessionFlag.Name), prompt)
	if err != nil {
		return err
	}
	return cfg.encode(res)
}
