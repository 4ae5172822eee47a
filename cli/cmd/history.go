package cmd

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/archive"
	"github.com/pithecene-io/screener/cli/config"
	"github.com/pithecene-io/screener/cli/reader"
	"github.com/pithecene-io/screener/cli/render"
)

// Archive flags.
var (
	ArchiveBackendFlag = &cli.StringFlag{
		Name:  "archive-backend",
		Usage: "Archive backend: fs or s3",
	}

	ArchivePathFlag = &cli.StringFlag{
		Name:  "archive-path",
		Usage: "Archive location (fs: directory, s3: bucket/prefix)",
	}

	ArchiveDatasetFlag = &cli.StringFlag{
		Name:  "archive-dataset",
		Usage: "Archive dataset ID (default: screener)",
	}

	ArchiveRegionFlag = &cli.StringFlag{
		Name:  "archive-s3-region",
		Usage: "AWS region for the s3 backend (optional, uses default chain)",
	}

	ArchiveEndpointFlag = &cli.StringFlag{
		Name:  "archive-s3-endpoint",
		Usage: "Custom S3 endpoint for S3-compatible stores",
	}

	ArchivePathStyleFlag = &cli.BoolFlag{
		Name:  "archive-s3-path-style",
		Usage: "Force path-style S3 addressing",
	}
)

// ArchiveFlags returns the flags that locate the archive.
func ArchiveFlags() []cli.Flag {
	return []cli.Flag{
		ArchiveBackendFlag,
		ArchivePathFlag,
		ArchiveDatasetFlag,
		ArchiveRegionFlag,
		ArchiveEndpointFlag,
		ArchivePathStyleFlag,
	}
}

// HistoryCommand returns the history command with subcommands.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect, clear, or archive past queries",
		Subcommands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
			historyClearCommand(),
			historyExportCommand(),
			historyArchivedCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List history entries, most recent first",
		Flags: withFlags(ReadOnlyFlags(), StorageFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries (0 = all)",
			},
		}),
		Action: historyListAction,
	}
}

func historyListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	entries := e.history.Load(c.Context)
	if limit := c.Int("limit"); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return r.RenderHistory(entries)
}

func historyShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one history entry with its full result",
		ArgsUsage: "<entry-id>",
		Flags:     withFlags(ReadOnlyFlags(), StorageFlags()),
		Action:    historyShowAction,
	}
}

func historyShowAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("history show requires exactly one entry ID", exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	id := c.Args().First()
	e.history.Load(c.Context)
	entry, ok := e.history.Find(id)
	if !ok {
		return cli.Exit(fmt.Sprintf("no history entry with ID %q", id), exitUsage)
	}
	return r.RenderEntry(entry)
}

func historyClearCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Delete all history entries",
		Flags:  StorageFlags(),
		Action: historyClearAction,
	}
}

func historyClearAction(c *cli.Context) error {
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	n := len(e.history.Load(c.Context))
	e.history.Clear(c.Context)
	fmt.Fprintf(c.App.Writer, "cleared %d entries\n", n)
	return nil
}

// ExportResponse is the response for history export.
type ExportResponse struct {
	Dataset string   `json:"dataset"`
	Backend string   `json:"backend"`
	Entries int      `json:"entries"`
	Days    []string `json:"days"`
}

func historyExportCommand() *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Write history to a day-partitioned archive (fs or s3)",
		Flags:  withFlags(ReadOnlyFlags(), StorageFlags(), ArchiveFlags()),
		Action: historyExportAction,
	}
}

func historyExportAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	choice, err := resolveArchive(c, e.cfg)
	if err != nil {
		return err
	}
	acfg := archive.Config{
		Dataset:   choice.dataset,
		SessionID: e.meta.SessionID,
		Logger:    e.logger,
		Metrics:   e.metrics,
	}
	var a *archive.Archive
	if choice.backend == "s3" {
		a, err = archive.NewS3(c.Context, acfg, choice.s3Config())
	} else {
		a, err = archive.NewFS(acfg, choice.path)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitConfig)
	}
	defer func() { _ = a.Close() }()

	summary, err := a.Export(c.Context, e.history.Load(c.Context))
	if err != nil {
		return cli.Exit(fmt.Sprintf("export failed after %d entries: %v", summary.Entries, err), exitTransport)
	}
	e.logger.Sugar().With("backend", choice.backend).Infof("exported %d entries to %s", summary.Entries, a.Dataset())

	return r.Render(ExportResponse{
		Dataset: a.Dataset(),
		Backend: choice.backend,
		Entries: summary.Entries,
		Days:    summary.Days,
	})
}

func historyArchivedCommand() *cli.Command {
	return &cli.Command{
		Name:  "archived",
		Usage: "List entries previously exported to the archive",
		Flags: withFlags(ReadOnlyFlags(), []cli.Flag{ConfigFlag, EnvFileFlag}, ArchiveFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "day",
				Usage: "Only entries from this day (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "ticker",
				Usage: "Only entries mentioning this ticker",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries (0 = all)",
			},
		}),
		Action: historyArchivedAction,
	}
}

func historyArchivedAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	choice, err := resolveArchive(c, cfg)
	if err != nil {
		return err
	}
	factory, err := archiveFactory(c.Context, choice)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitConfig)
	}
	ds, err := archive.OpenDataset(choice.dataset, factory)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitConfig)
	}

	entries, skipped, err := reader.ReadArchive(c.Context, ds, reader.ListOptions{
		Day:    c.String("day"),
		Ticker: c.String("ticker"),
		Limit:  c.Int("limit"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read archive: %v", err), exitTransport)
	}
	if skipped > 0 {
		fmt.Fprintf(c.App.ErrWriter, "Warning: skipped %d malformed archive records\n", skipped)
	}
	if entries == nil {
		entries = []reader.ArchivedEntry{}
	}
	return r.Render(entries)
}

// archiveChoice holds parsed archive configuration.
type archiveChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

func resolveArchive(c *cli.Context, cfg *config.Config) (archiveChoice, error) {
	ac := configVal(cfg, func(c *config.Config) config.ArchiveConfig { return c.Archive })
	choice := archiveChoice{
		backend:   resolveString(c, "archive-backend", ac.Backend),
		path:      resolveString(c, "archive-path", ac.Path),
		dataset:   resolveString(c, "archive-dataset", ac.Dataset),
		region:    resolveString(c, "archive-s3-region", ac.Region),
		endpoint:  resolveString(c, "archive-s3-endpoint", ac.Endpoint),
		pathStyle: resolveBool(c, "archive-s3-path-style", ac.S3PathStyle),
	}
	if choice.backend == "" {
		choice.backend = "fs"
	}
	if choice.dataset == "" {
		choice.dataset = archive.DefaultDataset
	}
	if choice.backend != "fs" && choice.backend != "s3" {
		return choice, cli.Exit(fmt.Sprintf("unknown archive backend %q (must be fs or s3)", choice.backend), exitUsage)
	}
	if choice.path == "" {
		return choice, cli.Exit("--archive-path is required (or set archive.path in config)", exitUsage)
	}
	return choice, nil
}

func (a archiveChoice) s3Config() archive.S3Config {
	bucket, prefix := archive.ParseS3Path(a.path)
	return archive.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       a.region,
		Endpoint:     a.endpoint,
		UsePathStyle: a.pathStyle,
	}
}

// archiveFactory opens the archive for reading.
func archiveFactory(ctx context.Context, choice archiveChoice) (lode.StoreFactory, error) {
	if choice.backend == "s3" {
		return archive.S3Factory(ctx, choice.s3Config())
	}
	return lode.NewFSFactory(choice.path), nil
}
