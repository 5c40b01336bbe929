package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/embeddings"
)

func Version(ctx context.Context) error {
	info, _ := debug.ReadBuildInfo()

	version := "(devel)"
	if info != nil {
		version = info.Main.Version
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)

	tbl.AppendRow(table.Row{"caikit-deploy", version})

	if metadata, err := embeddings.Metadata(); err == nil {
		tbl.AppendRow(table.Row{"chart " + charts.Name, metadata.Version})
		tbl.AppendRow(table.Row{"app", metadata.AppVersion})
	}

	if info != nil {
		for _, mod := range info.Deps {
			if !slices.Contains([]string{"k8s.io/client-go", "helm.sh/helm/v3"}, mod.Path) {
				continue
			}
			tbl.AppendRow(table.Row{mod.Path, mod.Version})
		}
	}

	_, err := fmt.Fprintln(internal.Stdout(ctx), tbl.Render())
	return err
}
