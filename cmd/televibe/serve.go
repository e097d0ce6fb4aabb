package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration engine and its configured chat collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, rootFlags.root, configPathFor(rootFlags.root))
		},
	}
}

func runServe(ctx context.Context, root, cfgPath string) error {
	e, err := newEngine(ctx, root, cfgPath)
	if err != nil {
		return err
	}
	defer e.st.Close()
	defer e.logger.Sync()

	reportRestart(e)

	if err := e.start(ctx); err != nil {
		return fmt.Errorf("televibe: start chat collaborators: %w", err)
	}

	if err := os.WriteFile(e.paths.HealthFlag(), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		e.logger.Warn("televibe: write health flag", zap.Error(err))
	}

	e.logger.Info("televibe: serving", zap.String("root", root))
	<-ctx.Done()
	e.logger.Info("televibe: shutting down")

	if err := writeRestartState(e); err != nil {
		e.logger.Warn("televibe: write restart state", zap.Error(err))
	}
	return nil
}

// restartState is the restart_state.json record: serve writes it on
// shutdown (reason "shutdown"), and on the next start reportRestart reads
// it, announces the restart in chat when ChatID is set, and removes it.
type restartState struct {
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
	ChatID    int64     `json:"chat_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

func writeRestartState(e *engine) error {
	rs := restartState{Reason: "shutdown", At: time.Now().UTC()}
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.paths.RestartState(), data, 0o644)
}

// reportRestart announces a prior restart to the chat it interrupted, then
// removes the marker so it isn't repeated on the next startup.
func reportRestart(e *engine) {
	data, err := os.ReadFile(e.paths.RestartState())
	if err != nil {
		return
	}
	var rs restartState
	if err := json.Unmarshal(data, &rs); err != nil {
		return
	}
	defer os.Remove(e.paths.RestartState())

	if rs.ChatID == 0 {
		return
	}
	chat := e.chatCollaborator()
	if chat == nil {
		return
	}
	msg := fmt.Sprintf("back online after a restart (%s)", rs.Reason)
	if _, err := chat.SendMessage(context.Background(), rs.ChatID, msg, nil); err != nil {
		e.logger.Warn("televibe: announce restart", zap.Error(err))
	}
}
