package opencode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// Client wraps the opencode SDK for one local server instance.
type Client struct {
	sdk *opencode.Client
}

// NewClient points at the local opencode server on port.
func NewClient(port int) *Client {
	return &Client{
		sdk: opencode.NewClient(
			option.WithBaseURL(fmt.Sprintf("http://127.0.0.1:%d", port)),
		),
	}
}

// NewSession creates an agent session rooted at the given directory and
// returns its id.
func (c *Client) NewSession(ctx context.Context, directory string) (string, error) {
	absDir, err := filepath.Abs(directory)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session directory: %w", err)
	}
	sess, err := c.sdk.Session.New(ctx, opencode.SessionNewParams{
		Directory: opencode.F(absDir),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sess.ID, nil
}

// Prompt sends one user text prompt into a session.
func (c *Client) Prompt(ctx context.Context, sessionID, directory, providerID, modelID, text string) error {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		return fmt.Errorf("session directory %s does not exist: %w", directory, err)
	}
	absDir, err := filepath.Abs(directory)
	if err != nil {
		return fmt.Errorf("failed to resolve session directory: %w", err)
	}

	_, err = c.sdk.Session.Prompt(ctx, sessionID, opencode.SessionPromptParams{
		Directory: opencode.F(absDir),
		Parts: opencode.F([]opencode.SessionPromptParamsPartUnion{
			&opencode.TextPartInputParam{
				Type: opencode.F(opencode.TextPartInputTypeText),
				Text: opencode.F(text),
			},
		}),
		Model: opencode.F(opencode.SessionPromptParamsModel{
			ProviderID: opencode.F(providerID),
			ModelID:    opencode.F(modelID),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}
	return nil
}

// Summarize asks the agent for a commit message describing the session's
// work, with write tools disabled.
func (c *Client) Summarize(ctx context.Context, sessionID, directory, providerID, modelID, instruction string) (string, error) {
	absDir, err := filepath.Abs(directory)
	if err != nil {
		return "", err
	}
	response, err := c.sdk.Session.Prompt(ctx, sessionID, opencode.SessionPromptParams{
		Directory: opencode.F(absDir),
		Tools: opencode.F(map[string]bool{
			"write": false,
			"edit":  false,
		}),
		Parts: opencode.F([]opencode.SessionPromptParamsPartUnion{
			&opencode.TextPartInputParam{
				Type: opencode.F(opencode.TextPartInputTypeText),
				Text: opencode.F(instruction),
			},
		}),
		Model: opencode.F(opencode.SessionPromptParamsModel{
			ProviderID: opencode.F(providerID),
			ModelID:    opencode.F(modelID),
		}),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	for _, part := range response.Parts {
		if part.Type == "text" && part.Text != "" {
			return part.Text, nil
		}
	}
	return "", nil
}

// RunServer starts the opencode server as a child process and kills it when
// ctx is canceled.
func RunServer(ctx context.Context, wg *sync.WaitGroup, port int) {
	defer wg.Done()

	cmd := exec.Command("opencode", "serve", "-p", strconv.Itoa(port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		slog.Error("failed to start opencode server", "error", err)
		os.Exit(1)
	}
	slog.Info("opencode server started", "port", port)

	<-ctx.Done()
	if err := cmd.Process.Kill(); err != nil {
		slog.Error("failed to kill opencode server", "error", err)
	}
	cmd.Wait() // wait for the process to exit
	slog.Info("opencode server stopped")
}
