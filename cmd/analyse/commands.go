package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/service"
	"github.com/anime-shed/image-analyser-go/internal/storage"
	"github.com/anime-shed/image-analyser-go/pkg/validation"
)

// app is the part of the container the commands use
type app interface {
	Service() service.ImageAnalysisService
	Fetcher() storage.ImageFetcher
	Config() *config.Config
	Close() error
}

type opener func(ctx context.Context) (app, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "analyse",
		Short:        "Analyse images with the Cloud Vision API and record the results",
		SilenceUsage: true,
	}

	root.AddCommand(
		newFileCmd(open),
		newURLCmd(open),
		newHistoryCmd(open),
	)
	return root
}

func newFileCmd(open opener) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Analyse a local image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			if err := validation.ValidateFileName(name); err != nil {
				return err
			}

			return withApp(cmd.Context(), open, func(ctx context.Context, a app) error {
				result, err := a.Service().Analyse(ctx, name, content)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "object name to store the file under (defaults to the base name)")
	return cmd
}

func newURLCmd(open opener) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Fetch an image over HTTP and analyse it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageURL := args[0]
			if err := validation.NewURLValidator().ValidateImageURL(imageURL); err != nil {
				return err
			}
			if name == "" {
				name = validation.FileNameFromURL(imageURL)
			}
			if err := validation.ValidateFileName(name); err != nil {
				return err
			}

			return withApp(cmd.Context(), open, func(ctx context.Context, a app) error {
				content, err := a.Fetcher().FetchImage(ctx, imageURL)
				if err != nil {
					return err
				}
				result, err := a.Service().Analyse(ctx, name, content)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "object name to store the image under (defaults to the last path segment)")
	return cmd
}

func newHistoryCmd(open opener) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded analyses as JSON lines, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), open, func(ctx context.Context, a app) error {
				items, err := a.Service().History(ctx, limit, offset)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, item := range items {
					if err := enc.Encode(item); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records (at most 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	return cmd
}

// withApp opens the container, bounds fn by the analysis timeout and always
// closes the container afterwards.
func withApp(ctx context.Context, open opener, fn func(ctx context.Context, a app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if timeout := a.Config().AnalysisTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, a)
}
