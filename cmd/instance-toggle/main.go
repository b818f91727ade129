package main

import (
	"context"
	"os"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/instances"
	"FlowSpectra/internal/logging"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/charmbracelet/log"
)

// handler adapts a Toggler to the Lambda runtime. ACTION is read on every
// invocation.
type handler struct {
	toggler *instances.Toggler
	getenv  func(string) string
}

func (h *handler) Handle(ctx context.Context) (instances.Response, error) {
	action, err := instances.ParseAction(h.getenv("ACTION"))
	if err != nil {
		log.Error("Rejected invocation", "error", err)
		return instances.Response{}, err
	}
	return h.toggler.Handle(ctx, action)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal("Failed to load .env", "error", err)
	}
	cfg, err := config.LoadOrDefault(os.Getenv("FLOWSPECTRA_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}
	logging.Setup(cfg.Log.Level, false)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatal("Failed to load AWS configuration", "error", err)
	}

	h := &handler{
		toggler: instances.NewToggler(ec2.NewFromConfig(awsCfg), cfg.Instances.NamePattern),
		getenv:  os.Getenv,
	}
	lambda.Start(h.Handle)
}
