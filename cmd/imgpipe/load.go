package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kean-go/imagepipeline"
	"github.com/kean-go/imagepipeline/process"
)

var (
	loadOut          string
	loadThumbWidth   float64
	loadThumbHeight  float64
	loadThumbMaxPx   float64
	loadThumbCrop    bool
	loadTimeout      time.Duration
)

var loadCmd = &cobra.Command{
	Use:   "load <source>",
	Short: "Load and decode one image from a file:// or http(s):// source",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().StringVarP(&loadOut, "out", "o", "", "write the final image bytes here (if empty, print a one-line summary to stdout)")
	loadCmd.Flags().Float64Var(&loadThumbWidth, "thumb-width", 0, "flexible thumbnail width")
	loadCmd.Flags().Float64Var(&loadThumbHeight, "thumb-height", 0, "flexible thumbnail height")
	loadCmd.Flags().Float64Var(&loadThumbMaxPx, "thumb-max-pixel-size", 0, "fixed thumbnail max pixel size")
	loadCmd.Flags().BoolVar(&loadThumbCrop, "thumb-crop", false, "crop to exact thumb-width/thumb-height instead of preserving aspect")
	loadCmd.Flags().DurationVar(&loadTimeout, "timeout", 2*time.Minute, "give up waiting for the Task after this long")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	req := imagepipeline.NewRequestFromURL(args[0])
	if loadThumbMaxPx > 0 {
		req.Thumbnail = &imagepipeline.ThumbnailOptions{MaxPixelSize: loadThumbMaxPx}
		req.Processors = append(req.Processors, process.Factory())
	} else if loadThumbWidth > 0 && loadThumbHeight > 0 {
		req.Thumbnail = &imagepipeline.ThumbnailOptions{Width: loadThumbWidth, Height: loadThumbHeight, Crop: loadThumbCrop}
		req.Processors = append(req.Processors, process.Factory())
	}

	done := make(chan struct{})
	obs := &cliObserver{req: req, done: done}
	task := p.Load(req, obs, imagepipeline.EPriority.Normal())

	select {
	case <-done:
	case <-time.After(loadTimeout):
		task.Cancel()
		return fmt.Errorf("timed out waiting for %s", args[0])
	}

	if obs.err != nil {
		return obs.err
	}
	if loadOut == "" {
		fmt.Fprintf(os.Stdout, "loaded %s: %d bytes, processed=%v\n", args[0], len(obs.data), obs.processed)
		return nil
	}
	return os.WriteFile(loadOut, obs.data, 0o644)
}

// cliObserver adapts the Task's callback-based Observer contract to a
// blocking request/response shape suitable for a one-shot CLI command.
type cliObserver struct {
	imagepipeline.DefaultObserver
	req       imagepipeline.Request
	done      chan struct{}
	data      []byte
	processed bool
	err       error
	closed    bool
}

func (o *cliObserver) Progress(req imagepipeline.Request, p imagepipeline.Progress) {
	if p.Total > 0 {
		fmt.Fprintf(os.Stderr, "\rloading %s: %d/%d bytes", req.URL, p.Completed, p.Total)
	}
}

func (o *cliObserver) Preview(req imagepipeline.Request, container imagepipeline.ImageContainer) {
	fmt.Fprintf(os.Stderr, "\npreview available: %d bytes\n", len(container.Data))
}

func (o *cliObserver) Finished(req imagepipeline.Request, resp imagepipeline.Response) {
	o.data = resp.Container.Data
	o.processed = resp.Container.Processed
	o.finish(nil)
}

func (o *cliObserver) Failed(req imagepipeline.Request, err error) { o.finish(err) }

func (o *cliObserver) Cancelled(req imagepipeline.Request) {
	o.finish(fmt.Errorf("cancelled: %s", req.URL))
}

func (o *cliObserver) finish(err error) {
	if o.closed {
		return
	}
	o.closed = true
	o.err = err
	close(o.done)
}
