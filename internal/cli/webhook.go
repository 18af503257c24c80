package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
)

var (
	webhookSecret    string
	webhookFile      string
	webhookURL       string
	webhookSessionID string
	webhookFull      bool
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Tools for testing the provider webhook",
}

var webhookSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print the hex HMAC-SHA256 signature of a payload file",
	Long: `Print the hex HMAC-SHA256 signature of a payload file.

Examples:
  parley webhook sign --file payload.json
  parley webhook sign --file - --secret whsec_...  < payload.json`,
	Args: cobra.NoArgs,
	RunE: runWebhookSign,
}

var webhookSendCmd = &cobra.Command{
	Use:   "send",
	Short: "POST a signed test payload to a running server",
	Long: `POST a signed test payload correlated to --session-id.

Without --full the payload only carries the correlation bundle, so the server
answers "ignored". With --full it also carries a short transcript and an
analysis and completes the session.`,
	Args: cobra.NoArgs,
	RunE: runWebhookSend,
}

func init() {
	for _, c := range []*cobra.Command{webhookSignCmd, webhookSendCmd} {
		c.Flags().StringVar(&webhookSecret, "secret", "", "signing secret (default $ELEVENLABS_WEBHOOK_SECRET)")
	}
	webhookSignCmd.Flags().StringVarP(&webhookFile, "file", "f", "-", "payload file, - for stdin")

	webhookSendCmd.Flags().StringVar(&webhookURL, "url", os.Getenv("ELEVENLABS_WEBHOOK_URL"), "webhook endpoint")
	webhookSendCmd.Flags().StringVar(&webhookSessionID, "session-id", "test-session", "session id to correlate")
	webhookSendCmd.Flags().BoolVar(&webhookFull, "full", false, "include transcript and analysis")

	webhookCmd.AddCommand(webhookSignCmd)
	webhookCmd.AddCommand(webhookSendCmd)
}

func resolveSecret() (string, error) {
	if webhookSecret != "" {
		return webhookSecret, nil
	}
	if cfg != nil && cfg.WebhookSecret != "" {
		return cfg.WebhookSecret, nil
	}
	return "", fmt.Errorf("no secret: pass --secret or set ELEVENLABS_WEBHOOK_SECRET")
}

func runWebhookSign(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret()
	if err != nil {
		return err
	}

	var body []byte
	if webhookFile == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(webhookFile)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(body, secret))
	return nil
}

func runWebhookSend(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret()
	if err != nil {
		return err
	}
	if webhookURL == "" {
		return fmt.Errorf("no url: pass --url or set ELEVENLABS_WEBHOOK_URL")
	}

	body, err := testPayload(webhookSessionID, webhookFull)
	if err != nil {
		return err
	}
	header := "X-Signature"
	if cfg != nil && cfg.WebhookSignatureHeader != "" {
		header = cfg.WebhookSignatureHeader
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sending test payload to %s\n", webhookURL)
	fmt.Fprintf(out, "Payload: %s\n", body)

	status, resp, err := sendSigned(ctx, http.DefaultClient, webhookURL, header, secret, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	fmt.Fprintf(out, "Status: %d\n", status)
	fmt.Fprintf(out, "Response: %s\n", resp)
	return nil
}

// testPayload builds a flat post-call body correlated to sessionID.
func testPayload(sessionID string, full bool) ([]byte, error) {
	payload := map[string]any{
		"type": "post_call_transcription",
		"conversation_initiation_client_data": map[string]any{
			"dynamic_variables": map[string]any{"session_id": sessionID},
		},
	}
	if full {
		payload["transcript"] = []map[string]any{
			{"role": "agent", "message": "Hi, thanks for joining. What would you like to practice?", "time_in_call_secs": 0},
			{"role": "user", "message": "Asking my manager for a raise.", "time_in_call_secs": 4},
		}
		payload["analysis"] = map[string]any{
			"overall_score": 75,
			"criteria":      map[string]any{"clarity": 80, "confidence": 70},
			"summary":       "Manual test call.",
		}
	}
	return json.Marshal(payload)
}

func sendSigned(ctx context.Context, client *http.Client, url, header, secret string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, webhook.Sign(body, secret))

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(text), nil
}
