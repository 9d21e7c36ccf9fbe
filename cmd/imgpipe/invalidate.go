package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kean-go/imagepipeline"
)

var invalidateAll bool

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [source]",
	Short: "Drop cached entries for one source, or every cached entry with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInvalidate,
}

func init() {
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "invalidate every pipeline entry instead of a single source")
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	if invalidateAll {
		p.InvalidateAll()
		fmt.Println("invalidated entire pipeline")
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("invalidate requires a source argument unless --all is set")
	}
	req := imagepipeline.NewRequestFromURL(args[0])
	p.Invalidate(req, nil)
	fmt.Printf("invalidated %s\n", args[0])
	return nil
}
