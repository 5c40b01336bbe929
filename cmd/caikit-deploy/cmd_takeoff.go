package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/release"
)

type TakeoffParams struct {
	GlobalSettings
	RenderFlags
	release.TakeoffParams
}

//go:embed cmd_takeoff_help.txt
var takeoffHelp string

func init() {
	takeoffHelp = strings.TrimSpace(internal.Colorize(takeoffHelp))
}

func GetTakeoffParams(settings GlobalSettings, args []string) (*TakeoffParams, error) {
	flagset := flag.NewFlagSet("takeoff", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), takeoffHelp)
		flagset.PrintDefaults()
	}

	params := TakeoffParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	RegisterRenderFlags(flagset, &params.RenderFlags)

	flagset.BoolVar(&params.TestRun, "test-run", false, "render the release and write it to stdout without contacting the cluster")
	flagset.BoolVar(&params.SkipDryRun, "skip-dry-run", false, "disables running dry run to resources before applying them")
	flagset.BoolVar(&params.ForceConflicts, "force-conflicts", false, "force apply changes on field manager conflicts")

	flagset.BoolVar(&params.DiffOnly, "diff-only", false, "show diff between current revision and would be applied state. Does not apply anything to cluster")
	flagset.BoolVar(&params.Color, "color", term.IsTerminal(int(os.Stdout.Fd())), "use colored output in diffs")
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in diff (ignored if not using --diff-only)")
	flagset.StringVar(&params.Out, "out", "", "if present outputs release resources to directory specified, if out is - outputs to standard out")
	flagset.DurationVar(&params.Wait, "wait", 0, "time to wait for release to be ready")
	flagset.DurationVar(&params.Poll, "poll", 5*time.Second, "interval to poll resource state at. Used with --wait")

	flagset.Parse(args)

	params.Release = flagset.Arg(0)
	if params.Release == "" {
		return nil, fmt.Errorf("release is required as first positional arg")
	}

	if err := params.validate(); err != nil {
		return nil, err
	}

	return &params, nil
}

func TakeOff(ctx context.Context, params TakeoffParams) error {
	resources, err := params.RenderFlags.Resources(ctx, params.Release)
	if err != nil {
		return fmt.Errorf("failed to render release: %w", err)
	}

	if params.TestRun {
		internal.AddReleaseMetadata(resources, params.Release)
		return release.ExportToStdout(ctx, resources)
	}

	params.TakeoffParams.Resources = resources
	params.TakeoffParams.Namespace = params.RenderFlags.Namespace
	params.TakeoffParams.Ref = params.RenderFlags.Ref()

	client, err := release.FromKubeConfig(params.KubeConfigPath, params.StateNamespace)
	if err != nil {
		return err
	}
	return client.Takeoff(ctx, params.TakeoffParams)
}
