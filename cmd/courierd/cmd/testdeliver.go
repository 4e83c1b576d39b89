package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/store/memory"
)

var (
	testURL    string
	testSecret string
	testEvent  string
	testData   string
)

var testDeliverCmd = &cobra.Command{
	Use:   "test-deliver",
	Short: "Send one signed test request and print the result",
	Long: `Send a single signed webhook to --url exactly as a real delivery would be
sent. Nothing is stored and nothing is retried.`,
	Example: `  courierd test-deliver --url https://example.com/hook --secret whsec_x \
    --event message-received --data '{"text":"hi"}'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if testURL == "" {
			return errors.New("--url is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		c, err := courier.New(
			courier.WithStore(memory.New()),
			courier.WithLogger(newLogger()),
			courier.WithDefaultTimeout(cfg.DefaultTimeout),
			courier.WithMaxResponseBody(cfg.MaxResponseBody),
			courier.WithTestRateLimit(0, 0),
		)
		if err != nil {
			return err
		}

		var payload any
		if testData != "" {
			payload = json.RawMessage(testData)
		}

		res := c.TestDeliver(cmd.Context(), delivery.TestRequest{
			URL:       testURL,
			Secret:    testSecret,
			EventType: testEvent,
			Payload:   payload,
		})

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if !res.Success {
			return errors.New("test delivery failed")
		}
		return nil
	},
}

func init() {
	testDeliverCmd.Flags().StringVar(&testURL, "url", "", "target URL")
	testDeliverCmd.Flags().StringVar(&testSecret, "secret", "", "signing secret")
	testDeliverCmd.Flags().StringVar(&testEvent, "event", "webhook-test", "event type header")
	testDeliverCmd.Flags().StringVar(&testData, "data", "", "JSON payload, sent verbatim")

	rootCmd.AddCommand(testDeliverCmd)
}
