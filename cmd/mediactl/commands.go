package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"media-manager/internal/auth"
	"media-manager/internal/database"
	"media-manager/internal/manager"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/startup"
	"media-manager/internal/thumbnail"
	"media-manager/internal/workers"
)

// session holds the services opened for one command.
type session struct {
	db   *database.Database
	svc  *manager.Services
	vips bool
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := startup.LoadConfig()
	if err != nil {
		return nil, err
	}
	workers.SetOverride(cfg.Workers)

	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	mcfg, err := cfg.ManagerConfig()
	if err != nil {
		db.Close()
		return nil, err
	}
	svc, err := manager.NewServices(db, mcfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{db: db, svc: svc, vips: cfg.ImageCodec == "vips"}, nil
}

func (s *session) manager() *manager.Manager {
	sys := auth.System()
	return manager.New(s.svc, sys, sys)
}

func (s *session) close() {
	if s.vips {
		thumbnail.ShutdownVips()
	}
	if err := s.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// run opens a session, calls fn and closes the session.
func run(cmd *cobra.Command, fn func(ctx context.Context, m *manager.Manager) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return describe(fn(ctx, s.manager()))
}

// describe prefixes an error with its user-facing message.
func describe(err error) error {
	if err == nil || mediaerr.Kind(err) == nil {
		return err
	}
	return fmt.Errorf("%s (%w)", mediaerr.Message(err), err)
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "mediactl",
		Short:         "Manage the media directory and its index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if !verbose && os.Getenv("LOG_LEVEL") == "" && os.Getenv("DEBUG") == "" {
				os.Setenv("LOG_LEVEL", "warn")
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show informational log output")

	root.AddCommand(
		newRebuildCmd(),
		newListCmd(),
		newSearchCmd(),
		newMkdirCmd(),
		newThumbsCmd(),
		newPeekCmd(),
		newInflateCmd(),
		newRmCmd(),
	)
	return root
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [dir]",
		Short: "Reconcile a directory tree with the index",
		Long: `Registers every file below dir that has no index row and deletes the
rows of files that no longer exist. dir defaults to the media root.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				if err := m.Rebuild(ctx, dirArg(args)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %s\n", dirArg(args))
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var typeFilter, sortField, sortOrder string
	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List a directory with its index data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				if err := m.ChangeDirectory(dirArg(args)); err != nil {
					return err
				}
				m.SetSort(manager.SortSpec{
					Field: mediatypes.ParseSortField(sortField),
					Order: mediatypes.ParseSortOrder(sortOrder),
				})
				listing, err := m.List(ctx, typeFilter)
				if err != nil {
					return err
				}
				return printListing(cmd.OutOrStdout(), listing)
			})
		},
	}
	cmd.Flags().StringVar(&typeFilter, "type", "", "Only list files of this MIME category (image, video, ...)")
	cmd.Flags().StringVar(&sortField, "sort", "name", "Sort field: name, size or date")
	cmd.Flags().StringVar(&sortOrder, "order", "asc", "Sort order: asc or desc")
	return cmd
}

func printListing(w io.Writer, l *manager.Listing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tSIZE\tOWNER\tPRIVATE\tTITLE\n")
	for _, d := range l.Dirs {
		if d.Parent {
			continue
		}
		fmt.Fprintf(tw, "-\t%s/\t-\t-\t-\t-\n", d.Name)
	}
	for _, f := range l.Files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%v\t%s\n", idString(f.ID), f.Name, f.Size, orDash(f.OwnerID), f.Private, orDash(f.Title))
	}
	return tw.Flush()
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles and file names in the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				items, err := m.Search(ctx, args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "ID\tPATH\tTITLE\n")
				for _, it := range items {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", it.ID, it.RelPath, orDash(it.Title))
				}
				return tw.Flush()
			})
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>",
		Short: "Create a directory inside the media root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				return m.MakeDir(ctx, args[0])
			})
		},
	}
}

func newThumbsCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "thumbs <path>",
		Short: "Regenerate thumbnails of an image or of every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				return m.RecreateThumbnails(ctx, args[0], force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate thumbnails that are up to date")
	return cmd
}

func newPeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek <archive.zip>",
		Short: "List the entries an archive would extract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				entries, err := m.PeekZip(ctx, &manager.Item{RelPath: args[0]})
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}
				return nil
			})
		},
	}
}

func newInflateCmd() *cobra.Command {
	var noSubdir bool
	cmd := &cobra.Command{
		Use:   "inflate <archive.zip>",
		Short: "Extract an archive next to itself and index the files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				dir, err := m.InflateZip(ctx, &manager.Item{RelPath: args[0]}, !noSubdir)
				if dir == "" {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", describe(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Extracted to %s\n", dir)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSubdir, "no-subdir", false, "Extract into the archive's directory instead of a new one")
	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file with its index row and thumbnails, or an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *manager.Manager) error {
				return m.RemoveItem(ctx, args[0])
			})
		},
	}
}

func idString(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
