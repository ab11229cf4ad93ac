package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"UniAD/internal/domain/models"
	domsvc "UniAD/internal/domain/service"
	"UniAD/internal/services/detectors"
	"UniAD/internal/usecase"
	xhttp "UniAD/pkg/http"
	"UniAD/pkg/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "detectctl",
		Short:         "Run univariate anomaly detection on a JSON request",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newDetectCmd(stdin), newVersionCmd())
	return root
}

type detectOptions struct {
	kind      string
	file      string
	kernel    string
	kernelURL string
	timeout   time.Duration
	pretty    bool
}

func newDetectCmd(stdin io.Reader) *cobra.Command {
	o := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect --kind <kind> --file <request.json>",
		Short: "Detect anomalies in the scoring series of a request",
		Long: `Reads a request body as accepted by the HTTP endpoints and prints
the anomaly list. Use --file - to read from stdin.

Kinds: persist, threshold, levelshift, volatilityshift.

Examples:

  detectctl detect --kind threshold --file req.json
  detectctl detect --kind levelshift --kernel remote --kernel-url http://scorer:8000 --file -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd.Context(), o, stdin, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.kind, "kind", "", "strategy kind")
	f.StringVar(&o.file, "file", "-", "request file, - for stdin")
	f.StringVar(&o.kernel, "kernel", "local", "detection kernel: local or remote")
	f.StringVar(&o.kernelURL, "kernel-url", "", "base URL of the remote kernel")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "detection deadline")
	f.BoolVar(&o.pretty, "pretty", false, "indent the output")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runDetect(ctx context.Context, o *detectOptions, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	kind, err := models.ParseStrategyKind(o.kind)
	if err != nil {
		return err
	}
	strategies, err := strategiesFor(o.kernel, o.kernelURL, o.timeout)
	if err != nil {
		return err
	}

	body, err := readInput(o.file, stdin)
	if err != nil {
		return err
	}
	var req models.DetectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: decode request: %v", models.ErrInvalidInput, err)
	}
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, xhttp.DescribeValidation(err))
	}

	svc := usecase.NewDetectionService(
		usecase.NewPipeline(strategies),
		usecase.DetectionServiceConfig{Timeout: o.timeout},
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		nil, nil, nil,
	)
	res, err := svc.Detect(ctx, usecase.SourceCLI, kind, req)
	if err != nil {
		return fmt.Errorf("%s: %w", usecase.ErrorCode(err), err)
	}

	enc := json.NewEncoder(out)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res.Response)
}

func strategiesFor(kernel, url string, timeout time.Duration) (domsvc.StrategyResolver, error) {
	switch kernel {
	case "local":
		return detectors.NewLocalRegistry(), nil
	case "remote":
		if url == "" {
			return nil, fmt.Errorf("--kernel-url is required for the remote kernel")
		}
		return detectors.NewRemoteRegistry(detectors.NewKernelClient(url, timeout, 3)), nil
	default:
		return nil, fmt.Errorf("unknown kernel %q", kernel)
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return b, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the detectctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "detectctl %s\n", version)
		},
	}
}
