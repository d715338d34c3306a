package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/gherkit/pkg/scenario"
)

func newFilesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List generated feature files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			files, err := scenario.NewWriter(cfg.OutputDir, nil).List()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No feature files generated yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tBYTES\tMODIFIED")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%d\t%s\n", f.Filename, f.Size, f.Modified.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
