package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikalv/Pure64/internal/diskmanager"
)

// withManager opens the image for the duration of fn.
func withManager(fn func(*diskmanager.Manager) error) error {
	dm, err := openManager()
	if err != nil {
		return err
	}
	defer dm.Close()
	return fn(dm)
}

func lsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path...]",
		Short: "list directory contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"/"}
			}
			out := cmd.OutOrStdout()
			return withManager(func(dm *diskmanager.Manager) error {
				for _, dir := range args {
					entries, err := dm.ListDir(dir)
					if err != nil {
						return fmt.Errorf("failed to open '%s': %w", dir, err)
					}
					fmt.Fprintf(out, "%s:\n", dir)
					for _, e := range entries {
						if e.IsDir {
							fmt.Fprintf(out, "dir  : %s\n", e.Name)
						} else {
							fmt.Fprintf(out, "file : %s\n", e.Name)
						}
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat path...",
		Short: "print the contents of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withManager(func(dm *diskmanager.Manager) error {
				for _, p := range args {
					rc, err := dm.ReadFile(p)
					if err != nil {
						return fmt.Errorf("failed to open '%s': %w", p, err)
					}
					_, err = io.Copy(out, rc)
					rc.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func cpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp source destination",
		Short: "copy a file from the host into the image",
		Long: `Copy a host file into the image. Missing parent directories are created
and an existing file at the destination is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			f, err := os.Open(src)
			if err != nil {
				return fmt.Errorf("failed to open source file '%s': %w", src, err)
			}
			defer f.Close()
			fi, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to get file size of '%s': %w", src, err)
			}

			return withManager(func(dm *diskmanager.Manager) error {
				err := dm.BeginTransaction(func(tx *diskmanager.Transaction) error {
					return tx.WriteFile(dst, f, fi.Size())
				})
				if err != nil {
					return fmt.Errorf("failed to copy '%s' to '%s': %w", src, dst, err)
				}
				log.Debugf("Copied %s to %s (%d bytes)", src, dst, fi.Size())
				return nil
			})
		},
	}
	return cmd
}

// treeEditCmd builds a command that applies op to every argument in one
// transaction.
func treeEditCmd(use, short, verb string, op func(*diskmanager.Transaction, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(dm *diskmanager.Manager) error {
				return dm.BeginTransaction(func(tx *diskmanager.Transaction) error {
					for _, p := range args {
						if err := op(tx, p); err != nil {
							return fmt.Errorf("failed to %s '%s': %w", verb, p, err)
						}
					}
					return nil
				})
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	return treeEditCmd("mkdir path...", "create directories and their parents", "create directory",
		(*diskmanager.Transaction).MakeDir)
}

func rmCmd() *cobra.Command {
	return treeEditCmd("rm path...", "remove files", "remove file",
		(*diskmanager.Transaction).RemoveFile)
}

func rmdirCmd() *cobra.Command {
	return treeEditCmd("rmdir path...", "remove empty directories", "remove directory",
		(*diskmanager.Transaction).RemoveDir)
}
