package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/release"
)

type RenderParams struct {
	GlobalSettings
	RenderFlags
	Release string
	Out     string
}

//go:embed cmd_render_help.txt
var renderHelp string

func init() {
	renderHelp = strings.TrimSpace(internal.Colorize(renderHelp))
}

func GetRenderParams(settings GlobalSettings, args []string) (*RenderParams, error) {
	flagset := flag.NewFlagSet("render", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), renderHelp)
		flagset.PrintDefaults()
	}

	params := RenderParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	RegisterRenderFlags(flagset, &params.RenderFlags)

	flagset.StringVar(&params.Out, "out", "-", "directory to write resources to, - writes a YAML stream to stdout")

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

func Render(ctx context.Context, params RenderParams) error {
	resources, err := params.Resources(ctx, params.Release)
	if err != nil {
		return fmt.Errorf("failed to render release: %w", err)
	}

	internal.AddReleaseMetadata(resources, params.Release)

	if params.Out == "-" {
		return release.ExportToStdout(ctx, resources)
	}
	return release.ExportToFS(params.Out, params.Release, resources)
}
