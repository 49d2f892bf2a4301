package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudpath/pkg/cloudpath"
	"github.com/objectfs/cloudpath/pkg/utils"
)

func newLsCmd(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls <path>",
		Short: "List directory contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "ls", func(ctx context.Context) error {
				entries, err := p.LsInfo(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					name := e.BaseName()
					if e.IsDir {
						name += "/"
					}
					if long {
						fmt.Fprintf(out, "%10s  %s  %s\n", utils.FormatBytes(e.Size),
							e.LastModified.Format(time.RFC3339), name)
					} else {
						fmt.Fprintln(out, name)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size and modification time")
	return cmd
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print the file contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			var data []byte
			err = a.do(cmd.Context(), "cat", func(ctx context.Context) error {
				data, err = p.ReadBytes(ctx)
				return err
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var (
		noClobber    bool
		contentType  string
		storageClass string
	)
	cmd := &cobra.Command{
		Use:   "put <destination>",
		Short: "Write stdin to the destination path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			opts := []cloudpath.WriteOption{cloudpath.Overwrite(!noClobber)}
			if contentType != "" {
				opts = append(opts, cloudpath.ContentType(contentType))
			}
			if storageClass != "" {
				opts = append(opts, cloudpath.StorageClass(storageClass))
			}
			return a.do(cmd.Context(), "put", func(ctx context.Context) error {
				return p.WriteBytes(ctx, data, opts...)
			})
		},
	}
	cmd.Flags().BoolVarP(&noClobber, "no-clobber", "n", false, "fail if the destination exists")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of the written object")
	cmd.Flags().StringVar(&storageClass, "storage-class", "", "storage class of the written object")
	return cmd
}

type transferFunc func(ctx context.Context, src, dst cloudpath.Path, opts ...cloudpath.WriteOption) error

func newTransferCmd(a *app, use, short, op string, run transferFunc) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.path(args[0])
			if err != nil {
				return err
			}
			dst, err := a.path(args[1])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), op, func(ctx context.Context) error {
				return run(ctx, src, dst, cloudpath.Overwrite(overwrite))
			})
		},
	}
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "replace an existing destination")
	return cmd
}

func newCpCmd(a *app) *cobra.Command {
	return newTransferCmd(a, "cp <source> <destination>", "Copy a file, across backends if needed", "cp",
		func(ctx context.Context, src, dst cloudpath.Path, opts ...cloudpath.WriteOption) error {
			return src.Copy(ctx, dst, opts...)
		})
}

func newMvCmd(a *app) *cobra.Command {
	return newTransferCmd(a, "mv <source> <destination>", "Move a file, across backends if needed", "mv",
		func(ctx context.Context, src, dst cloudpath.Path, opts ...cloudpath.WriteOption) error {
			return src.Move(ctx, dst, opts...)
		})
}

func newRmCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file, or a tree with -r",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "rm", func(ctx context.Context) error {
				if recursive {
					return p.RemoveAll(ctx)
				}
				return p.Remove(ctx)
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove everything below the path")
	return cmd
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show file information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "stat", func(ctx context.Context) error {
				info, err := p.Info(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path: %s\n", p)
				fmt.Fprintf(out, "type: %s\n", info.Type())
				fmt.Fprintf(out, "size: %d\n", info.Size)
				if !info.LastModified.IsZero() {
					fmt.Fprintf(out, "modified: %s\n", info.LastModified.Format(time.RFC3339))
				}
				if info.ETag != "" {
					fmt.Fprintf(out, "etag: %s\n", info.ETag)
				}
				if info.ContentType != "" {
					fmt.Fprintf(out, "content_type: %s\n", info.ContentType)
				}
				for k, v := range info.Metadata {
					fmt.Fprintf(out, "meta.%s: %s\n", k, v)
				}
				return nil
			})
		},
	}
}

func newChecksumCmd(a *app) *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "checksum <path>",
		Short: "Print the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "checksum", func(ctx context.Context) error {
				sum, err := p.Checksum(ctx, algorithm)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, p)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "md5", "hash algorithm: md5|sha1|sha256")
	return cmd
}

func newURLCmd(a *app) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print a signed URL for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			url, err := p.URL(cmd.Context(), expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "validity of the signed URL")
	return cmd
}

func newLocalizeCmd(a *app) *cobra.Command {
	var (
		dir       string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "localize <path>",
		Short: "Download a file below a local directory and print the local path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			var local cloudpath.Path
			err = a.do(cmd.Context(), "localize", func(ctx context.Context) error {
				local, err = p.Localize(ctx, dir, cloudpath.Overwrite(overwrite))
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), local.Native())
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "local directory receiving bucket/key")
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "replace an existing local file")
	return cmd
}

func newTouchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path>",
		Short: "Create an empty file or update its modification time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "touch", p.Touch)
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory or bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			if parents {
				return a.do(cmd.Context(), "mkdir", p.MakeDirs)
			}
			return a.do(cmd.Context(), "mkdir", p.Mkdir)
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents")
	return cmd
}

func printPaths(w io.Writer, paths []cloudpath.Path) {
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
}

func newFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find <path>",
		Short: "List every file below a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "find", func(ctx context.Context) error {
				paths, err := p.Find(ctx)
				if err != nil {
					return err
				}
				printPaths(cmd.OutOrStdout(), paths)
				return nil
			})
		},
	}
}

func newGlobCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "glob <path> <pattern>",
		Short: "List the paths below a path matching a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.path(args[0])
			if err != nil {
				return err
			}
			return a.do(cmd.Context(), "glob", func(ctx context.Context) error {
				paths, err := p.Glob(ctx, args[1])
				if err != nil {
					return err
				}
				printPaths(cmd.OutOrStdout(), paths)
				return nil
			})
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}, &cobra.Command{
		Use:   "bundles",
		Short: "Print the state of every client bundle built so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for scheme, state := range a.fs.Bundles() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", scheme, state)
			}
			return nil
		},
	})
	return cmd
}
