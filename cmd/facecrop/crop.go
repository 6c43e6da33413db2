package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/dixieflatline76/facecrop/pkg/render"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// cropFlags holds the crop command's overrides of the config file.
type cropFlags struct {
	OutDir   string
	Target   float64
	Padding  float64
	Policy   string
	Size     int
	Format   string
	Fallback bool
}

var cropOpts cropFlags

var cropCmd = &cobra.Command{
	Use:   "crop FILE...",
	Short: "Crop image files to a square around the first face",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyCropFlags(cmd)
		controller, err := newController()
		if err != nil {
			return err
		}
		if err := controller.Start(cmd.Context()); err != nil {
			return err
		}

		bar := progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Cropping"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		format, err := render.ParseFormat(cfg.OutputFormat)
		if err != nil {
			return err
		}
		sum, err := cropFiles(cmd.Context(), controller, args, cropOpts.OutDir, format, bar)
		_ = bar.Finish()
		fmt.Fprintln(cmd.OutOrStdout())
		sum.print(cmd.OutOrStdout())
		return err
	},
}

// applyCropFlags copies explicitly set flags over the config.
func applyCropFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("target") {
		cfg.TargetFacePercent = cropOpts.Target
	}
	if f.Changed("padding") {
		cfg.PaddingPercent = cropOpts.Padding
	}
	if f.Changed("policy") {
		cfg.EdgePolicy = cropOpts.Policy
	}
	if f.Changed("size") {
		cfg.OutputSize = cropOpts.Size
	}
	if f.Changed("format") {
		cfg.OutputFormat = cropOpts.Format
	}
	if f.Changed("fallback") {
		cfg.SmartFallback = cropOpts.Fallback
	}
}

type submitter interface {
	Submit(ctx context.Context, data []byte) (facecrop.Result, error)
}

// summary counts batch outcomes.
type summary struct {
	Cropped  int
	NoFace   int
	Failed   int
	Failures []string
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "%d cropped, %d without a usable face, %d failed\n", s.Cropped, s.NoFace, s.Failed)
	for _, f := range s.Failures {
		fmt.Fprintln(w, "  "+f)
	}
}

// cropFiles runs each file through p in order and writes the crops to outDir.
// It fails only when no file produced a crop.
func cropFiles(ctx context.Context, p submitter, files []string, outDir string, format render.Format, bar *progressbar.ProgressBar) (summary, error) {
	var sum summary
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		status, err := cropFile(ctx, p, file, outDir, format)
		switch {
		case err != nil:
			sum.Failed++
			sum.Failures = append(sum.Failures, fmt.Sprintf("%s: %v", file, err))
		case status == facecrop.StatusSuccess:
			sum.Cropped++
		default:
			sum.NoFace++
			sum.Failures = append(sum.Failures, fmt.Sprintf("%s: no usable face", file))
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if sum.Cropped == 0 {
		return sum, errors.New("no image was cropped")
	}
	return sum, nil
}

func cropFile(ctx context.Context, p submitter, file, outDir string, format render.Format) (facecrop.Status, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return facecrop.StatusError, err
	}
	res, err := p.Submit(ctx, data)
	if err != nil {
		return facecrop.StatusError, err
	}
	if res.Status != facecrop.StatusSuccess {
		return res.Status, nil
	}

	if err := writeDataURL(outputPath(file, outDir, "_face", format), res.Image); err != nil {
		return facecrop.StatusError, err
	}
	if res.Preview != "" {
		if err := writeDataURL(outputPath(file, outDir, "_face_debug", format), res.Preview); err != nil {
			return facecrop.StatusError, err
		}
	}
	return res.Status, nil
}

// outputPath names the output for input: photo.jpeg becomes <outDir>/photo<suffix>.png.
// An empty outDir writes next to the input.
func outputPath(input, outDir, suffix string, format render.Format) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	return filepath.Join(outDir, name+suffix+format.Ext())
}

func writeDataURL(path, dataURL string) error {
	_, data, err := render.DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func init() {
	cropCmd.Flags().StringVarP(&cropOpts.OutDir, "out", "o", "", "Output directory (default: next to each input)")
	cropCmd.Flags().Float64VarP(&cropOpts.Target, "target", "t", 0.6, "Fraction of the crop side the face should fill")
	cropCmd.Flags().Float64VarP(&cropOpts.Padding, "padding", "p", 0.1, "Extra margin around the face")
	cropCmd.Flags().StringVar(&cropOpts.Policy, "policy", "pin", "Edge policy when the crop is larger than the image: pin, negative, shrink")
	cropCmd.Flags().IntVarP(&cropOpts.Size, "size", "s", 0, "Resize crops to this side in pixels (0 keeps native size)")
	cropCmd.Flags().StringVarP(&cropOpts.Format, "format", "f", "png", "Output format: png or jpeg")
	cropCmd.Flags().BoolVar(&cropOpts.Fallback, "fallback", false, "Crop the most detailed region when no face is found")
	rootCmd.AddCommand(cropCmd)
}
