package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/davidmdm/x/xcontext"

	"github.com/caikit/caikit-embeddings-deploy/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if internal.IsWarning(err) {
			return
		}
		os.Exit(1)
	}
}

//go:embed cmd_help.txt
var rootHelp string

func init() {
	rootHelp = strings.TrimSpace(internal.Colorize(rootHelp))
}

func run() error {
	ctx, done := xcontext.WithSignalCancelation(context.Background(), syscall.SIGINT)
	defer done()

	settings, err := GlobalSettingsFromEnv()
	if err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	RegisterGlobalFlags(flag.CommandLine, &settings)

	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), rootHelp)
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}

	flag.Parse()

	if len(flag.Args()) == 0 {
		flag.Usage()
		return fmt.Errorf("no command provided")
	}

	return execute(ctx, settings, flag.Arg(0), flag.Args()[1:])
}

func execute(ctx context.Context, settings GlobalSettings, cmd string, args []string) error {
	switch cmd {
	case "render", "template":
		{
			params, err := GetRenderParams(settings, args)
			if err != nil {
				return err
			}
			return Render(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "takeoff", "up", "apply":
		{
			params, err := GetTakeoffParams(settings, args)
			if err != nil {
				return err
			}
			return TakeOff(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "descent", "down", "rollback":
		{
			params, err := GetDescentParams(settings, args)
			if err != nil {
				return err
			}
			return Descent(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "mayday", "delete":
		{
			params, err := GetMaydayParams(settings, args)
			if err != nil {
				return err
			}
			return Mayday(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "blackbox", "inspect":
		{
			params, err := GetBlackBoxParams(settings, args)
			if err != nil {
				return err
			}
			return Blackbox(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "dockerfile":
		{
			params, err := GetDockerfileParams(settings, args)
			if err != nil {
				return err
			}
			return Dockerfile(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "env":
		{
			params, err := GetEnvParams(settings, args)
			if err != nil {
				return err
			}
			return Env(withSettings(ctx, params.GlobalSettings), *params)
		}
	case "version":
		{
			return Version(ctx)
		}
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func withSettings(ctx context.Context, settings GlobalSettings) context.Context {
	return internal.WithDebug(ctx, settings.Debug)
}
