// Command grim captures the contents of one or more Wayland outputs and
// writes the result as PNG, PPM or JPEG.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"honnef.co/go/grim"
	"honnef.co/go/grim/internal/encode"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	if cfg.help {
		fmt.Print(usage)
		return 0
	}

	logger := zerolog.Nop()
	if cfg.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}

	g, err := grim.New(grim.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer g.Close()

	result, err := capture(g, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := writeOutput(cfg, result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func capture(g *grim.Grim, cfg config) (grim.CaptureResult, error) {
	if cfg.hasG {
		region, err := grim.ParseRect(cfg.region)
		if err != nil {
			return grim.CaptureResult{}, err
		}
		return g.CaptureRegionWithScale(region, cfg.scale)
	}
	if cfg.hasO {
		return g.CaptureOutputWithScale(cfg.output, cfg.scale)
	}
	return g.CaptureAllWithScale(cfg.scale)
}

func writeOutput(cfg config, result grim.CaptureResult) error {
	var w *os.File
	if cfg.hasPath {
		f, err := os.Create(cfg.outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	opts := encode.Options{
		JPEGQuality:         cfg.quality,
		JPEGProgressive:     cfg.progressive,
		PNGCompressionLevel: cfg.level,
	}
	return encode.Encode(w, result.Data, result.Width, result.Height, cfg.format, opts)
}
