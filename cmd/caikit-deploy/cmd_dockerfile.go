package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/image"
)

type DockerfileParams struct {
	GlobalSettings
	Out         string
	BaseImage   string
	Manifest    string
	ConfigFiles string
}

//go:embed cmd_dockerfile_help.txt
var dockerfileHelp string

func init() {
	dockerfileHelp = strings.TrimSpace(internal.Colorize(dockerfileHelp))
}

func GetDockerfileParams(settings GlobalSettings, args []string) (*DockerfileParams, error) {
	flagset := flag.NewFlagSet("dockerfile", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), dockerfileHelp)
		flagset.PrintDefaults()
	}

	recipe := image.DefaultRecipe()

	params := DockerfileParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.StringVar(&params.Out, "out", "-", "file to write the Dockerfile to, - writes to stdout")
	flagset.StringVar(&params.BaseImage, "base", recipe.BaseImage, "base image")
	flagset.StringVar(&params.Manifest, "manifest", recipe.Manifest, "dependency manifest installed before the sources are copied")
	flagset.StringVar(&params.ConfigFiles, "config-files", recipe.Env[image.ConfigFilesEnv], "runtime configuration file(s) exposed as "+image.ConfigFilesEnv)

	flagset.Parse(args)

	return &params, nil
}

func (params DockerfileParams) Recipe() image.Recipe {
	recipe := image.DefaultRecipe()
	recipe.BaseImage = params.BaseImage
	if params.Manifest != recipe.Manifest {
		recipe.Manifest = params.Manifest
		recipe.InstallCommand = []string{"pip", "install", "--no-cache-dir", "-r", params.Manifest}
	}
	recipe.Env[image.ConfigFilesEnv] = params.ConfigFiles
	return recipe
}

func Dockerfile(ctx context.Context, params DockerfileParams) error {
	dockerfile, err := params.Recipe().Dockerfile()
	if err != nil {
		return fmt.Errorf("failed to render dockerfile: %w", err)
	}

	if params.Out == "-" {
		_, err = internal.Stdout(ctx).Write(dockerfile)
		return err
	}

	return os.WriteFile(params.Out, dockerfile, 0o644)
}
