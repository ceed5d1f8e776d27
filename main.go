package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/df07/go-bucket-raytracer/pkg/bucket"
	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/filter"
	"github.com/df07/go-bucket-raytracer/pkg/photonmap"
	"github.com/df07/go-bucket-raytracer/pkg/renderer"
	"github.com/df07/go-bucket-raytracer/pkg/scene"
)

// renderConfig holds everything the command line controls
type renderConfig struct {
	Scene    string
	Width    int
	Height   int
	Sampler  string
	Filter   string
	AAMin    int
	AAMax    int
	Samples  int
	Contrast float64
	Jitter   bool
	Bucket   int
	Order    string
	Photons  string
	Emit     int
	Threads  int
	Output   string
}

func parseFlags(args []string) (renderConfig, bool, error) {
	var cfg renderConfig
	fs := flag.NewFlagSet("raytracer", flag.ContinueOnError)
	fs.StringVar(&cfg.Scene, "scene", "discs", "Scene type: 'plane', 'discs', 'caustics' or 'gi'")
	fs.IntVar(&cfg.Width, "width", 400, "Image width")
	fs.IntVar(&cfg.Height, "height", 300, "Image height")
	fs.StringVar(&cfg.Sampler, "sampler", "bucket", "Image sampler: 'bucket', 'multipass', 'ipr' or 'fast'")
	fs.StringVar(&cfg.Filter, "filter", "box", "Reconstruction filter")
	fs.IntVar(&cfg.AAMin, "aa-min", 0, "Minimum antialiasing depth")
	fs.IntVar(&cfg.AAMax, "aa-max", 2, "Maximum antialiasing depth")
	fs.IntVar(&cfg.Samples, "samples", 1, "Rays per sample (samples per pixel for multipass)")
	fs.Float64Var(&cfg.Contrast, "contrast", 0.1, "Contrast threshold for adaptive refinement")
	fs.BoolVar(&cfg.Jitter, "jitter", false, "Jitter sample positions")
	fs.IntVar(&cfg.Bucket, "bucket", 32, "Bucket size in pixels")
	fs.StringVar(&cfg.Order, "order", "hilbert", "Bucket order")
	fs.StringVar(&cfg.Photons, "photons", "none", "Photon map: 'none', 'caustic', 'global' or 'grid'")
	fs.IntVar(&cfg.Emit, "photon-count", 100000, "Photons to emit")
	fs.IntVar(&cfg.Threads, "threads", 0, "Worker threads (0 = one per CPU)")
	fs.StringVar(&cfg.Output, "output", "output", "Output directory")
	help := fs.Bool("help", false, "Show help information")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if *help {
		fmt.Println("Bucket Raytracer")
		fmt.Println("Usage: raytracer [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
		fmt.Println()
		fmt.Printf("Filters: %v\n", filter.Names())
		fmt.Println("Bucket orders: row, column, diagonal, spiral, hilbert, random (prefix with 'inverse' to reverse)")
		fmt.Println()
		fmt.Println("Output will be saved to <output>/render_<timestamp>.png")
		return cfg, true, nil
	}
	return cfg, false, nil
}

// options translates the command line into renderer and photon map settings
func (cfg renderConfig) options() core.Options {
	return core.NewOptions().
		Set("bucket.size", cfg.Bucket).
		Set("bucket.order", cfg.Order).
		Set("aa.min", cfg.AAMin).
		Set("aa.max", cfg.AAMax).
		Set("aa.samples", cfg.Samples).
		Set("aa.contrast", cfg.Contrast).
		Set("aa.jitter", cfg.Jitter).
		Set("aa.cache", cfg.Sampler == "multipass").
		Set("filter", cfg.Filter).
		Set("caustics.emit", cfg.Emit).
		Set("gi.irr-cache.gmap.emit", cfg.Emit)
}

// createScene builds one of the built-in scenes
func createScene(name string, width, height, threads int) (*scene.PlaneScene, error) {
	config := scene.DefaultConfig()
	config.Threads = threads
	switch name {
	case "plane":
		return scene.NewPlaneScene(width, height, config), nil
	case "discs":
		s := scene.NewPlaneScene(width, height, config)
		s.AddDisc(core.NewVec3(-2, 1, 1), core.NewVec3(0, 0, 1), 1.2, scene.Surface{Albedo: core.NewVec3(0.9, 0.2, 0.2)})
		s.AddDisc(core.NewVec3(1.5, -0.5, 0.5), core.NewVec3(0, 0, 1), 0.8, scene.Surface{Albedo: core.NewVec3(0.2, 0.3, 0.9)})
		s.AddDisc(core.NewVec3(2.5, 2, 1.5), core.NewVec3(0, 0, 1), 0.6, scene.Surface{Albedo: core.Gray(0.9), Mirror: true})
		return s, nil
	case "caustics":
		// a tilted mirror throws the light sideways onto the floor
		s := scene.NewPlaneScene(width, height, config)
		s.AddDisc(core.NewVec3(0, 0, 2), core.NewVec3(2, 0, 1), 1, scene.Surface{Albedo: core.Gray(0.95), Mirror: true})
		return s, nil
	case "gi":
		// a coloured ceiling above the camera bounces light back down
		config.Background = core.Vec3{}
		s := scene.NewPlaneScene(width, height, config)
		s.AddDisc(core.NewVec3(0, 0, config.CameraHeight+1), core.NewVec3(0, 0, 1), 20, scene.Surface{Albedo: core.NewVec3(0.9, 0.7, 0.3)})
		s.AddDisc(core.NewVec3(-1.5, 0, 1), core.NewVec3(0, 0, 1), 1, scene.Surface{Albedo: core.NewVec3(0.3, 0.9, 0.3)})
		return s, nil
	default:
		return nil, fmt.Errorf("unknown scene type: %q", name)
	}
}

// tracePhotons fills the requested photon map and hooks it into the scene
func tracePhotons(ctx context.Context, s *scene.PlaneScene, kind string, opts core.Options, threads int, logger core.Logger) error {
	if kind == "" || kind == "none" {
		return nil
	}
	m, err := photonmap.New(kind, logger)
	if err != nil {
		return err
	}
	if err := photonmap.Emit(ctx, m, s.Lights(), s, opts, s.Bounds(), 0, threads, logger); err != nil {
		return err
	}
	switch m.(type) {
	case *photonmap.CausticMap:
		s.SetCaustics(m)
	case *photonmap.GridMap:
		s.SetIndirect(m, 1/math.Pi)
	default:
		s.SetIndirect(m, 1)
	}
	return nil
}

// writePNG saves the display to dir/render_<timestamp>.png
func writePNG(display *renderer.ImageDisplay, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("render_%s.png", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, display.Image()); err != nil {
		return "", fmt.Errorf("saving PNG: %w", err)
	}
	return filename, nil
}

func run(ctx context.Context, cfg renderConfig, logger core.Logger) error {
	if _, ok := bucket.NewOrder(cfg.Order); !ok {
		logger.Printf("Unknown bucket order %q, the sampler will use hilbert\n", cfg.Order)
	}
	s, err := createScene(cfg.Scene, cfg.Width, cfg.Height, cfg.Threads)
	if err != nil {
		return err
	}
	opts := cfg.options()

	if err := tracePhotons(ctx, s, cfg.Photons, opts, cfg.Threads, logger); err != nil {
		if !errors.Is(err, photonmap.ErrNoLights) && !errors.Is(err, photonmap.ErrNothingToEmit) {
			return err
		}
		logger.Printf("Skipping photon map: %v\n", err)
	}

	sampler, err := renderer.NewImageSampler(cfg.Sampler, s, logger)
	if err != nil {
		return err
	}
	if !sampler.Prepare(opts, cfg.Width, cfg.Height) {
		return fmt.Errorf("invalid render settings")
	}

	display := renderer.NewImageDisplay()
	stats := sampler.Render(ctx, display)
	fmt.Printf("Render completed in %v\n", stats.Elapsed)
	fmt.Printf("Tiles: %d/%d, samples: %d, subdivisions: %d\n",
		stats.TilesCompleted, stats.Tiles, stats.Samples, stats.Subdivisions)
	if stats.CacheHits+stats.CacheMisses > 0 {
		fmt.Printf("Shading cache hit rate: %.1f%%\n", stats.CacheHitRate()*100)
	}
	if stats.Canceled {
		fmt.Println("Render was canceled, saving partial image")
	}

	img := display.Image()
	fmt.Printf("Average luminance: %.3f\n", renderer.CalculateAverageLuminance(img))

	filename, err := writePNG(display, cfg.Output)
	if err != nil {
		return err
	}
	fmt.Printf("Render saved as %s\n", filename)
	return nil
}

func main() {
	cfg, helped, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if helped {
		return
	}

	fmt.Println("Starting Bucket Raytracer...")
	logger := renderer.NewDefaultLogger()
	systemCheck(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Printf("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
