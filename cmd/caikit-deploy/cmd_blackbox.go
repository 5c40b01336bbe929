package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/internal/k8s"
	"github.com/caikit/caikit-embeddings-deploy/internal/text"
)

type BlackboxParams struct {
	GlobalSettings
	Release          string
	ResourceMappings bool
	RevisionID       int
	DiffRevisionID   int
	Context          int
	Color            bool
}

//go:embed cmd_blackbox_help.txt
var blackboxHelp string

func init() {
	blackboxHelp = strings.TrimSpace(internal.Colorize(blackboxHelp))
}

func GetBlackBoxParams(settings GlobalSettings, args []string) (*BlackboxParams, error) {
	flagset := flag.NewFlagSet("blackbox", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), blackboxHelp)
		flagset.PrintDefaults()
	}

	params := BlackboxParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in diff (ignored if not comparing revisions)")
	flagset.BoolVar(&params.Color, "color", term.IsTerminal(int(os.Stdout.Fd())), "use colored output in diffs")
	flagset.BoolVar(&params.ResourceMappings, "mapping", false, "print release to resource mappings. If present ignores all other args")
	flagset.Parse(args)

	params.Release = flagset.Arg(0)

	if revision := flagset.Arg(1); revision != "" {
		revisionID, err := strconv.Atoi(revision)
		if err != nil {
			return nil, fmt.Errorf("revision must be an integer ID: %w", err)
		}
		params.RevisionID = revisionID
	}

	if revision := flagset.Arg(2); revision != "" {
		revisionID, err := strconv.Atoi(revision)
		if err != nil {
			return nil, fmt.Errorf("revision to diff must be an integer ID: %w", err)
		}
		params.DiffRevisionID = revisionID
	}

	return &params, nil
}

func Blackbox(ctx context.Context, params BlackboxParams) error {
	client, err := k8s.NewClientFromKubeConfig(params.KubeConfigPath, params.StateNamespace)
	if err != nil {
		return fmt.Errorf("failed to instantiate k8 client: %w", err)
	}
	return blackbox(ctx, client, params)
}

func blackbox(ctx context.Context, client *k8s.Client, params BlackboxParams) error {
	stdout := internal.Stdout(ctx)

	if params.ResourceMappings {
		mappings, err := client.GetResourceReleaseMapping(ctx)
		if err != nil {
			return fmt.Errorf("failed to lookup resource to release mappings: %w", err)
		}

		relToRes := make(map[string][]string)
		for resource, release := range mappings {
			relToRes[release] = append(relToRes[release], resource)
		}
		for _, resources := range relToRes {
			slices.Sort(resources)
		}

		return internal.EncodeYAML(stdout, relToRes)
	}

	allReleases, err := client.GetAllRevisions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get revisions: %w", err)
	}

	if params.Release == "" {
		slices.SortFunc(allReleases, func(a, b internal.Revisions) int {
			return strings.Compare(a.Release, b.Release)
		})

		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleRounded)

		tbl.AppendHeader(table.Row{"release", "revision id"})
		for _, revisions := range allReleases {
			active, _ := revisions.Active()
			tbl.AppendRow(table.Row{revisions.Release, active.ID})
		}

		_, err = io.WriteString(stdout, tbl.Render()+"\n")
		return err
	}

	revisions, ok := internal.Find(allReleases, func(revisions internal.Revisions) bool {
		return revisions.Release == params.Release
	})
	if !ok {
		return fmt.Errorf("release %q not found", params.Release)
	}

	if params.RevisionID == 0 {
		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleRounded)

		active, _ := revisions.Active()

		history := slices.Clone(revisions.History)
		slices.Reverse(history)

		tbl.AppendHeader(table.Row{"id", "resources", "values", "sha", "created at", "active"})
		for _, version := range history {
			tbl.AppendRow(table.Row{
				version.ID,
				len(version.Resources),
				version.Source.Ref,
				version.Source.Checksum,
				version.CreatedAt.Format(time.RFC3339),
				map[bool]string{true: "*"}[version.ID == active.ID],
			})
		}

		_, err = io.WriteString(stdout, tbl.Render()+"\n")
		return err
	}

	revision, ok := internal.Find(revisions.History, func(revision internal.Revision) bool {
		return revision.ID == params.RevisionID
	})
	if !ok {
		return fmt.Errorf("revision %d not found", params.RevisionID)
	}

	primaryRevision := internal.CanonicalObjectMap(revision.Resources)

	if params.DiffRevisionID == 0 {
		if err := internal.EncodeYAML(stdout, primaryRevision); err != nil {
			return fmt.Errorf("failed to encode resources: %w", err)
		}
		return nil
	}

	revision, ok = internal.Find(revisions.History, func(revision internal.Revision) bool {
		return revision.ID == params.DiffRevisionID
	})
	if !ok {
		return fmt.Errorf("revision %d not found", params.DiffRevisionID)
	}

	diffRevision := internal.CanonicalObjectMap(revision.Resources)

	a, err := text.ToYamlFile(fmt.Sprintf("revision %d", params.RevisionID), primaryRevision)
	if err != nil {
		return err
	}

	b, err := text.ToYamlFile(fmt.Sprintf("revision %d", params.DiffRevisionID), diffRevision)
	if err != nil {
		return err
	}

	differ := text.Diff
	if params.Color {
		differ = text.DiffColorized
	}

	_, err = fmt.Fprint(stdout, differ(a, b, params.Context))
	return err
}
