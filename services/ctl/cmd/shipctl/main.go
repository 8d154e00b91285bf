package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shipd/services/ctl"
	"shipd/services/pipeline"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shipctl",
		Short:         "Utility for driving the shipd release pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newDispatchCommand())
	cmd.AddCommand(newRunsCommand())
	cmd.AddCommand(newReleasesCommand())
	cmd.AddCommand(newArtifactsCommand())
	cmd.AddCommand(newBundlesCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func apiFlag(cmd *cobra.Command, api *string) {
	cmd.Flags().StringVar(api, "api", os.Getenv("SHIPD_API_URL"), "Base URL of the shipd API (e.g. http://localhost:8080)")
}

func newDispatchCommand() *cobra.Command {
	var (
		api       string
		ref       string
		refType   string
		commitSHA string
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Start a manual pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctl.NewClient(api)
			if err != nil {
				return err
			}
			return client.Dispatch(commandContext(cmd), ref, refType, commitSHA)
		},
	}

	apiFlag(cmd, &api)
	cmd.Flags().StringVar(&ref, "ref", "", "Ref to build (defaults to the pipeline branch)")
	cmd.Flags().StringVar(&refType, "ref-type", "", "Ref type, branch or tag")
	cmd.Flags().StringVar(&commitSHA, "commit", "", "Exact commit to build instead of the ref head")
	return cmd
}

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Pipeline run operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newRunsListCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	var (
		api   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctl.NewClient(api)
			if err != nil {
				return err
			}
			return client.ListRuns(commandContext(cmd), limit)
		},
	}

	apiFlag(cmd, &api)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs to show")
	return cmd
}

func newReleasesCommand() *cobra.Command {
	var api string

	cmd := &cobra.Command{
		Use:   "releases",
		Short: "List published releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctl.NewClient(api)
			if err != nil {
				return err
			}
			return client.ListReleases(commandContext(cmd))
		},
	}

	apiFlag(cmd, &api)
	return cmd
}

func newArtifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Artifact operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newArtifactsDownloadCommand())
	return cmd
}

func newArtifactsDownloadCommand() *cobra.Command {
	var (
		api        string
		artifactID string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download an artifact bundle via a presigned URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctl.NewClient(api)
			if err != nil {
				return err
			}
			return client.DownloadArtifact(commandContext(cmd), artifactID, output)
		},
	}

	apiFlag(cmd, &api)
	cmd.Flags().StringVar(&artifactID, "id", "", "Artifact ID to download")
	cmd.Flags().StringVar(&output, "output", "", "Destination file (defaults to <name>.tar.zst)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newBundlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Bundle operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundlesInspectCommand())
	return cmd
}

func newBundlesInspectCommand() *cobra.Command {
	var (
		bundleFile string
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a bundle manifest and verify its signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			var signer *pipeline.Signer
			if verify {
				var err error
				signer, err = pipeline.NewSignerFromEnv()
				if err != nil {
					return err
				}
			}
			return ctl.Inspect(ctl.InspectConfig{
				BundlePath: bundleFile,
				Signer:     signer,
				Stdout:     os.Stdout,
			})
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle tar.zst")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the manifest signature with AGE_PUBLIC_KEY")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
