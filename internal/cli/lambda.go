package cli

import (
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an API Gateway proxy Lambda handler",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, s, err := buildHandler(cmd.Context(), cfg)
		if err != nil {
			slog.Error("failed to bootstrap", "err", err)
			return err
		}
		defer s.close()

		lambda.Start(h.Handle)
		return nil
	},
}
