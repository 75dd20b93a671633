package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scriptbridge/sb-broker/internal/broker"
	"github.com/scriptbridge/sb-broker/internal/frame"
	"github.com/scriptbridge/sb-broker/internal/protocol"
)

var callCmd = &cobra.Command{
	Use:   "call hostName [payload]",
	Short: "Run one request through the broker and print the reply",
	Long: `Send a single request to hostName exactly as the browser would and
print the reply JSON. The payload is read from the argument, or from stdin
when omitted.

Example:
  echo '{"action":"ping"}' | sb-broker call com.example.echo`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := consoleLogger(cfg)
	defer logger.Sync()

	var payload []byte
	if len(args) == 2 {
		payload = []byte(args[1])
	} else {
		payload, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}

	msg, err := json.Marshal(protocol.Envelope{HostName: args[0], Payload: payload})
	if err != nil {
		return err
	}

	b := broker.New(newDirectory(cfg), newRunner(cfg, logger), frame.NewWriter(io.Discard, logger), cfg.MaxFrameSize, logger)
	reply := b.Handle(context.Background(), msg)

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if e, ok := reply.(protocol.ErrorReply); ok {
		return fmt.Errorf("request failed: %s", e.Error)
	}
	return nil
}
