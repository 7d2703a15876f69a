// Command burncascade is the Lambda function that expires the relationship
// records of burned parent templates. It consumes the parent table's
// DynamoDB stream.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/jacentio/fgo/internal/config"
	"github.com/jacentio/fgo/store"
	"github.com/jacentio/fgo/stream"
)

func main() {
	cfg, err := config.LoadLambda()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	s := store.New(config.NewDynamoDB(awsCfg, cfg.Endpoint), cfg.StoreConfig())
	h := stream.NewHandler(s, logger)

	lambda.Start(h.HandleBurnCascade)
}
