package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/backend"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/indexer"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/registry"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type addSourceFlags struct {
	name     string
	notion   string
	gmail    string
	remote   bool
	async    bool
	maxPages int
}

func (a *app) addSourceCmd() *cobra.Command {
	var f addSourceFlags
	cmd := &cobra.Command{
		Use:   "source [path|url]",
		Short: "Index a directory, file, web site or export as a source",
		Long: `Index content into a named collection, replacing any collection of the
same name.

  mirage add source ~/notes
  mirage add source https://go.dev/doc/ --max-pages 20
  mirage add source --notion ~/Downloads/notion-export
  mirage add source --gmail ~/Takeout/Mail/All.mbox --name mail

The name defaults to the path or URL with slashes turned into underscores.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAddSource(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.name, "name", "", "collection name")
	cmd.Flags().StringVar(&f.notion, "notion", "", "Notion markdown/HTML export directory")
	cmd.Flags().StringVar(&f.gmail, "gmail", "", "Gmail takeout .mbox file")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "store the source on the remote service even in local mode")
	cmd.Flags().BoolVar(&f.async, "async", false, "let the remote service crawl the URL in the background")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", config.MaxCrawlPages, "page limit when crawling a site")
	return cmd
}

// sourceTarget picks the single thing to index out of the argument and the
// export flags.
func sourceTarget(args []string, f addSourceFlags) (ingest.Kind, string, error) {
	var picked []string
	var kind ingest.Kind
	var target string
	if len(args) == 1 {
		picked = append(picked, "argument")
		target = args[0]
		kind = ingest.DetectKind(target)
	}
	if f.notion != "" {
		picked = append(picked, "--notion")
		kind, target = ingest.KindNotion, f.notion
	}
	if f.gmail != "" {
		picked = append(picked, "--gmail")
		kind, target = ingest.KindGmail, f.gmail
	}
	switch len(picked) {
	case 0:
		return "", "", errors.New("give a path or URL, --notion or --gmail")
	case 1:
		return kind, target, nil
	default:
		return "", "", fmt.Errorf("only one of %s may be given", strings.Join(picked, ", "))
	}
}

func defaultSourceName(kind ingest.Kind, target string) string {
	switch kind {
	case ingest.KindNotion:
		return registry.FixName("notion_" + filepath.Base(filepath.Clean(target)))
	case ingest.KindGmail:
		return registry.FixName("gmail_" + strings.TrimSuffix(filepath.Base(target), filepath.Ext(target)))
	case ingest.KindURL:
		return registry.FixName(target)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return registry.FixName(abs)
}

func (a *app) runAddSource(cmd *cobra.Command, args []string, f addSourceFlags) error {
	kind, target, err := sourceTarget(args, f)
	if err != nil {
		return err
	}
	name := registry.FixName(f.name)
	if name == "" {
		name = defaultSourceName(kind, target)
	}

	ctx := context.WithValue(cmd.Context(), config.TRACE_ID_KEY, uuid.NewString())
	s, set, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer set.Close()
	r := a.renderer(cmd)

	if f.async {
		return a.indexRemotely(ctx, cmd, set, kind, name, target, f.maxPages)
	}

	store, emb, loc, err := set.Destination(f.remote)
	if err != nil {
		return err
	}

	r.Info(fmt.Sprintf("Reading %s ...", target))
	docs, skipped, err := ingest.Load(ctx, kind, target, f.maxPages)
	if err != nil {
		return err
	}
	for _, sk := range skipped {
		r.Warn(fmt.Sprintf("skipped %s: %s", sk.Path, sk.Reason))
	}
	if len(docs) == 0 {
		return fmt.Errorf("nothing to index in %s", target)
	}

	chunks := chunker.New(s.MaxChunkTokens, a.deps.Counter).SplitAll(docs)
	idx := indexer.New(store, emb, loc, indexer.WithRegistry(set.Registry))
	handle, err := idx.CreateOrReplaceCollection(ctx, name, chunks)
	if err != nil {
		return err
	}
	r.Info(fmt.Sprintf("Indexed %d chunks from %d documents into %s (%s).", handle.Points, len(docs), handle.Name, handle.Location))
	return nil
}

func (a *app) indexRemotely(ctx context.Context, cmd *cobra.Command, set *backend.Set, kind ingest.Kind, name, target string, maxPages int) error {
	if kind != ingest.KindURL {
		return errors.New("--async only works for web URLs, the service cannot read local files")
	}
	if set.Remote == nil {
		return fmt.Errorf("remote service is not configured: %w", commonModels.ErrUnauthorized)
	}
	job, err := set.Remote.IndexURL(ctx, name, target, maxPages)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing %s into %s on the remote service, job %s\n", target, name, job.Id)
	fmt.Fprintf(out, "Status: %s\n", job.StatusURL)
	return nil
}

func (a *app) deleteSourceCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "source <name>...",
		Short: "Delete indexed sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, set, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer set.Close()

			snap, err := set.Registry.Snapshot(ctx)
			if err != nil {
				return err
			}
			if err := snap.Validate(args); err != nil {
				return err
			}
			for _, name := range args {
				loc := snap.Classify(name)
				if remote && snap.Remote[name] {
					loc = commonModels.LocationRemote
				}
				var store vectorDB.Store = set.Remote
				if loc == commonModels.LocationLocal {
					store = set.LocalStore
				}
				if err := indexer.New(store, nil, loc, indexer.WithRegistry(set.Registry)).DeleteCollection(ctx, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", name, loc)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "delete the remote copy when a name exists on both sides")
	return cmd
}

func (a *app) listSourcesCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources",
		Long: `List the local and remote sources. Without --refresh the names cached in
the settings file are shown, which needs no network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var local, remote []string
			if refresh {
				ctx := cmd.Context()
				_, set, err := a.open(ctx)
				if err != nil {
					return err
				}
				defer set.Close()
				// a failed remote listing still saves the local list
				if err := set.Registry.RefreshCache(ctx); err != nil {
					a.renderer(cmd).Warn(err.Error())
				}
				local, remote = set.Registry.Cached()
			} else {
				s, err := a.loadSettings()
				if err != nil {
					return err
				}
				local, remote = s.LocalSources, s.RemoteSources
			}
			printNames(cmd, "Local sources", local)
			printNames(cmd, "Remote sources", remote)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "query the stores and update the cached lists")
	return cmd
}

func printNames(cmd *cobra.Command, title string, names []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	if len(names) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, n := range names {
		fmt.Fprintf(out, "  %s\n", n)
	}
}
