package cmd

import (
	"fmt"

	"lora-console/core/dataset"

	"github.com/spf13/cobra"
)

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Upload and preview training datasets",
	}
	cmd.AddCommand(datasetUploadCmd(), datasetPreviewCmd())
	return cmd
}

func datasetUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a dataset file; .zip archives are extracted on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			outcome, err := dataset.NewUploader(e.api, e.logger).UploadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, outcome.Message())
			fmt.Fprintf(out, "Dataset path: %s\n", outcome.DatasetPath)
			return nil
		},
	}
}

func datasetPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <server-path>",
		Short: "List up to 12 preview images from a dataset path on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			items, err := dataset.NewUploader(e.api, e.logger).Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintf(out, "%s  %s%s\n", item.Path, e.api.BaseURL(), item.URL)
			}
			return nil
		},
	}
}
