package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/runtimeenv"
)

type EnvParams struct {
	GlobalSettings
	ValueFiles Strings
	Sets       Strings
}

//go:embed cmd_env_help.txt
var envHelp string

func init() {
	envHelp = strings.TrimSpace(internal.Colorize(envHelp))
}

func GetEnvParams(settings GlobalSettings, args []string) (*EnvParams, error) {
	flagset := flag.NewFlagSet("env", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), envHelp)
		flagset.PrintDefaults()
	}

	params := EnvParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	flagset.Var(&params.ValueFiles, "values", "read toggles from values files instead of the environment; may be repeated")
	flagset.Var(&params.Sets, "set", "set values on the command line (key1=val1,key2=val2); may be repeated")

	flagset.Parse(args)

	return &params, nil
}

func (params EnvParams) flags(ctx context.Context) (runtimeenv.Flags, error) {
	if len(params.ValueFiles) == 0 && len(params.Sets) == 0 {
		return runtimeenv.FromOS()
	}

	values, err := RenderFlags{ValueFiles: params.ValueFiles, Sets: params.Sets}.Values(ctx)
	if err != nil {
		return runtimeenv.Flags{}, err
	}

	return values.Env, nil
}

func Env(ctx context.Context, params EnvParams) error {
	flags, err := params.flags(ctx)
	if err != nil {
		return fmt.Errorf("failed to read runtime toggles: %w", err)
	}

	resolution := flags.Effective()

	var (
		requested = flags.Environ()
		effective = resolution.Flags.Environ()
	)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)

	tbl.AppendHeader(table.Row{"variable", "value", "effective"})
	for _, name := range runtimeenv.Names {
		tbl.AppendRow(table.Row{name, requested[name], effective[name]})
	}
	tbl.AppendSeparator()
	tbl.AppendRow(table.Row{"device", "", resolution.Device})

	if _, err := io.WriteString(internal.Stdout(ctx), tbl.Render()+"\n"); err != nil {
		return err
	}

	for _, warning := range resolution.Warnings {
		fmt.Fprintln(internal.Stderr(ctx), "warning: "+warning)
	}

	return nil
}
