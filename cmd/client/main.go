// Command client acts as input or output party of a collaboration.
//
// # Commands
//
// upload: Register as input party, secret-share the values of a CSV file and
// confirm the upload.
//
//	client upload --coordinator=http://localhost:8080 --collab=1 --party=1 --csv=data.csv
//
// result: Wait for the computation and reveal the result secrets.
//
//	client result --coordinator=http://localhost:8080 --collab=1 --wait=5m
//
// reveal: Reconstruct a single secret from the providers.
//
//	client reveal --coordinator=http://localhost:8080 --collab=1 --secret=<id>
//
// listen: Register as output party and print result notifications.
//
//	client listen --coordinator=http://localhost:8080 --collab=1 --party=9 \
//	    --addr=:8090 --endpoint=http://me:8090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/client"
	"github.com/glaciation-heu/sap-uc3/cmd/common"
	"github.com/glaciation-heu/sap-uc3/coordinator"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "upload":
		err = runUpload(ctx, args)
	case "result":
		err = runResult(ctx, args)
	case "reveal":
		err = runReveal(ctx, args)
	case "listen":
		err = runListen(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`client - input and output party of a collaboration

Usage:
  client <command> [options]

Commands:
  upload    Secret-share a CSV file and confirm the upload
  result    Wait for and reveal the computation result
  reveal    Reveal a single secret
  listen    Receive result notifications

Run 'client <command> --help' for command-specific options.`)
}

type commonFlags struct {
	coordinator string
	collab      int64
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.coordinator, "coordinator", "http://localhost:8080", "Coordinator URL")
	fs.Int64Var(&cf.collab, "collab", 0, "Collaboration id")
	return fs, cf
}

func runUpload(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("upload")
	party := fs.Int64("party", 0, "Input party id")
	csvPath := fs.String("csv", "", "CSV file with a header line and integer values")
	fs.Parse(args)

	if *csvPath == "" {
		return errors.New("--csv is required")
	}
	f, err := os.Open(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	values, err := client.ParseCSV(f)
	if err != nil {
		return err
	}

	c, err := client.ForCollaboration(ctx, cf.coordinator, cf.collab)
	if err != nil {
		return fmt.Errorf("loading collaboration: %w", err)
	}
	if _, err := c.RegisterInputParty(ctx, cf.collab, *party); err != nil && !errors.Is(err, client.ErrAlreadyRegistered) {
		return fmt.Errorf("registering: %w", err)
	}

	ids, err := c.Upload(ctx, cf.collab, *party, values)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %d values as %v\n", len(values), ids)
	return nil
}

func runResult(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("result")
	wait := fs.Duration("wait", 0, "Poll until the result is available or the duration passed")
	fs.Parse(args)

	c, err := client.ForCollaboration(ctx, cf.coordinator, cf.collab)
	if err != nil {
		return fmt.Errorf("loading collaboration: %w", err)
	}

	deadline := time.Now().Add(*wait)
	for {
		results, err := c.Result(ctx, cf.collab)
		if errors.Is(err, client.ErrNotFinished) && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if err != nil {
			return err
		}
		for i, values := range results {
			fmt.Printf("result %d: %v\n", i, values)
		}
		return nil
	}
}

func runReveal(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("reveal")
	secretID := fs.String("secret", "", "Secret id")
	fs.Parse(args)

	if *secretID == "" {
		return errors.New("--secret is required")
	}
	c, err := client.ForCollaboration(ctx, cf.coordinator, cf.collab)
	if err != nil {
		return fmt.Errorf("loading collaboration: %w", err)
	}
	values, err := c.Reveal(ctx, *secretID)
	if err != nil {
		return err
	}
	fmt.Println(values)
	return nil
}

func runListen(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("listen")
	party := fs.Int64("party", 0, "Output party id")
	addr := fs.String("addr", ":8090", "Listen address for notifications")
	endpoint := fs.String("endpoint", "", "URL under which the coordinator reaches this listener")
	logLevel := fs.String("log-level", "info", "Log level")
	fs.Parse(args)

	if *endpoint == "" {
		return errors.New("--endpoint is required")
	}
	log, err := common.NewLogger(common.LogConfig{Level: *logLevel})
	if err != nil {
		return err
	}

	handler := client.NewNotifyHandler(func(res coordinator.ExecutionResult) {
		fmt.Printf("collaboration %d finished: %s\n", res.CollaborationID, res.Message)
		if res.SecretID != nil {
			fmt.Printf("result secret: %s\n", *res.SecretID)
		}
	}, log)

	cfg := common.DefaultConfig()
	cfg.HTTPAddr = *addr
	srv, err := httpserver.New(common.ServerConfig(cfg, log), handler)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()

	c := client.New(cf.coordinator, nil)
	if err := c.RegisterOutputParty(ctx, cf.collab, *party, *endpoint); err != nil {
		return fmt.Errorf("registering output party: %w", err)
	}
	fmt.Printf("Listening for notifications on %s\n", *addr)

	<-ctx.Done()
	return nil
}
