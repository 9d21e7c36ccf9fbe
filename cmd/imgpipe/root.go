package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kean-go/imagepipeline"
	"github.com/kean-go/imagepipeline/decode"
	"github.com/kean-go/imagepipeline/encode"
	"github.com/kean-go/imagepipeline/loader"
)

// Persistent flags shared by every subcommand, following the teacher's
// root-command-owns-global-flags idiom (cmd/root.go).
var (
	diskCacheDir    string
	diskCacheMaxMB  int64
	rateLimitMBPS   float64
	progressiveFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "imgpipe",
	Short: "Exercise the imagepipeline engine against a file or URL",
}

func Execute() error {
	rootCmd.PersistentFlags().StringVar(&diskCacheDir, "cache-dir", "", "disk cache directory (disabled if empty)")
	rootCmd.PersistentFlags().Int64Var(&diskCacheMaxMB, "cache-max-mb", 256, "disk cache size bound, in megabytes")
	rootCmd.PersistentFlags().Float64Var(&rateLimitMBPS, "rate-limit-mbps", 0, "data-loading rate limit in MB/s (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&progressiveFlag, "progressive", true, "enable progressive decoding")
	return rootCmd.Execute()
}

// buildPipeline assembles a Pipeline from the process's persistent
// flags, shared by every subcommand that actually runs a Task.
func buildPipeline() (*imagepipeline.Pipeline, error) {
	var diskCache *imagepipeline.DiskCache
	if diskCacheDir != "" {
		dc, err := imagepipeline.OpenDiskCache(context.Background(), diskCacheDir, diskCacheMaxMB*1024*1024, nil)
		if err != nil {
			return nil, fmt.Errorf("opening disk cache: %w", err)
		}
		diskCache = dc
	}
	memCache := imagepipeline.NewMemoryCache(imagepipeline.MemoryCacheConfig{
		MaxCost:       256 << 20,
		MaxCount:      1024,
		TTL:           30 * time.Minute,
		StorePreviews: true,
	})

	cfg := imagepipeline.Config{
		DataLoader:     &loader.HTTPLoader{},
		DataCache:      diskCache,
		ImageCache:     memCache,
		DecoderFactory: decode.Factory(),
		EncoderFactory: encode.Factory(0),

		DataCachePolicy:                imagepipeline.EDataCachePolicy.Automatic(),
		IsProgressiveDecodingEnabled:    progressiveFlag,
		IsStoringPreviewsInMemoryCache:  true,
		IsTaskCoalescingEnabled:         true,
		IsDecompressionEnabled:          false,
		IsRateLimiterEnabled:            rateLimitMBPS > 0,
		RateLimiterBytesPerSecond:       int64(rateLimitMBPS * 1024 * 1024),
		RateLimiterBurstBytes:           int64(rateLimitMBPS * 1024 * 1024),
	}
	return imagepipeline.New(cfg)
}

