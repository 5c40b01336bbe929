package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/embeddings"
)

const (
	EngineNative = "native"
	EngineHelm   = "helm"
)

type RenderFlags struct {
	Namespace  string
	ValueFiles Strings
	Sets       Strings
	Engine     string
}

func RegisterRenderFlags(flagset *flag.FlagSet, flags *RenderFlags) {
	flagset.StringVar(&flags.Namespace, "namespace", "default", "namespace to render resources into")
	flagset.Var(&flags.ValueFiles, "values", "values file to overlay on the chart defaults; may be repeated and - reads stdin")
	flagset.Var(&flags.Sets, "set", "set values on the command line (key1=val1,key2=val2); may be repeated")
	flagset.StringVar(&flags.Engine, "engine", EngineNative, "rendering engine: native or helm")
}

func (flags RenderFlags) validate() error {
	if flags.Engine != EngineNative && flags.Engine != EngineHelm {
		return fmt.Errorf("engine must be one of %s or %s: got %q", EngineNative, EngineHelm, flags.Engine)
	}
	return nil
}

// Values reads the values files in order and layers them over the chart defaults.
func (flags RenderFlags) Values(ctx context.Context) (embeddings.Values, error) {
	overlays := make([][]byte, len(flags.ValueFiles))
	for i, path := range flags.ValueFiles {
		data, err := readValuesFile(ctx, path)
		if err != nil {
			return embeddings.Values{}, fmt.Errorf("failed to read values file: %w", err)
		}
		overlays[i] = data
	}
	return embeddings.LoadValues(overlays, flags.Sets)
}

func (flags RenderFlags) Resources(ctx context.Context, release string) ([]*unstructured.Unstructured, error) {
	defer internal.DebugTimer(ctx, "render "+flags.Engine)()

	values, err := flags.Values(ctx)
	if err != nil {
		return nil, err
	}

	if flags.Engine == EngineHelm {
		return embeddings.RenderHelm(release, flags.Namespace, values)
	}
	return embeddings.Render(release, flags.Namespace, values)
}

// Ref describes where the rendered resources came from.
func (flags RenderFlags) Ref() string {
	if len(flags.ValueFiles) == 0 {
		return "chart://" + charts.Name
	}
	return strings.Join(flags.ValueFiles, ",")
}

func readValuesFile(ctx context.Context, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(internal.Stdin(ctx))
	}
	return os.ReadFile(path)
}
