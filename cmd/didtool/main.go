// didtool runs the enrollment pipeline offline: enroll captured templates
// into a DID plus metadata payload, verify fresh captures against an
// earlier enrollment, or process a whole batch manifest. Helper data stays
// inline, so the tool needs no storage backend or network access.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/FractionEstate/decentralized-did/pkg/did"
	"github.com/FractionEstate/decentralized-did/pkg/enrollment"
	"github.com/FractionEstate/decentralized-did/pkg/storage"
)

// subjectSpec is one person's capture set as written in template and
// manifest files.
type subjectSpec struct {
	Name          string             `yaml:"name"`
	Fingers       []fingerSpec       `yaml:"fingers"`
	Quality       map[string]float64 `yaml:"quality"`
	Mode          string             `yaml:"mode"`
	Network       string             `yaml:"network"`
	WalletAddress string             `yaml:"wallet_address"`
	Controllers   []string           `yaml:"controllers"`
}

type fingerSpec struct {
	FingerID string       `yaml:"finger_id"`
	Minutiae [][3]float64 `yaml:"minutiae"`
}

// manifestSpec is the batch input: shared quantization parameters plus one
// entry per subject.
type manifestSpec struct {
	GridSize  float64       `yaml:"grid_size"`
	AngleBins uint32        `yaml:"angle_bins"`
	Subjects  []subjectSpec `yaml:"subjects"`
}

func main() {
	app := &cli.App{
		Name:  "didtool",
		Usage: "offline biometric DID enrollment and verification",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "grid-size",
				Usage: "quantization grid cell size",
				Value: 10.0,
			},
			&cli.UintFlag{
				Name:  "angle-bins",
				Usage: "number of minutia angle bins",
				Value: 16,
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "Cardano network tag for deterministic DIDs",
				Value: "mainnet",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "DID construction mode (deterministic or legacy)",
				Value: "deterministic",
			},
			&cli.UintFlag{
				Name:  "label",
				Usage: "CIP-20 metadata label",
				Value: 1990,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "enroll",
				Usage:     "enroll one subject from a YAML template file",
				ArgsUsage: "<template.yaml>",
				Action:    runEnroll,
			},
			{
				Name:      "verify",
				Usage:     "verify fresh captures against an earlier enrollment result",
				ArgsUsage: "<template.yaml> <enrollment.json>",
				Action:    runVerify,
			},
			{
				Name:      "batch",
				Usage:     "enroll every subject in a manifest, one JSON result per subject",
				ArgsUsage: "<manifest.yaml>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out-dir",
						Usage:    "directory for per-subject result files",
						Required: true,
					},
				},
				Action: runBatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "didtool: %v\n", err)
		os.Exit(1)
	}
}

func runEnroll(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one template file argument")
	}

	var subject subjectSpec
	if err := readYAML(c.Args().Get(0), &subject); err != nil {
		return err
	}

	svc, err := newService(c, c.Float64("grid-size"), uint32(c.Uint("angle-bins")))
	if err != nil {
		return err
	}

	result, err := svc.Enroll(context.Background(), enrollRequest(subject))
	if err != nil {
		return fmt.Errorf("enroll %q: %w", subject.Name, err)
	}
	return writeJSON(os.Stdout, result)
}

func runVerify(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected template and enrollment file arguments")
	}

	var subject subjectSpec
	if err := readYAML(c.Args().Get(0), &subject); err != nil {
		return err
	}

	raw, err := os.ReadFile(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("read enrollment file: %w", err)
	}
	var enrolled enrollment.EnrollResult
	if err := json.Unmarshal(raw, &enrolled); err != nil {
		return fmt.Errorf("parse enrollment file: %w", err)
	}

	helpers := make([]enrollment.HelperRef, 0, len(enrolled.Helpers))
	for _, h := range enrolled.Helpers {
		if h.Inline == nil {
			return fmt.Errorf("enrollment file references external helper storage; didtool verifies inline helpers only")
		}
		helpers = append(helpers, enrollment.HelperRef{Inline: h.Inline})
	}

	req := &enrollment.VerifyRequest{
		Fingers:        fingerInputs(subject.Fingers),
		Helpers:        helpers,
		ExpectedIDHash: enrolled.IDHash,
		Quality:        subject.Quality,
	}

	svc, err := newService(c, c.Float64("grid-size"), uint32(c.Uint("angle-bins")))
	if err != nil {
		return err
	}

	result, err := svc.Verify(context.Background(), req)
	if err != nil {
		return fmt.Errorf("verify %q: %w", subject.Name, err)
	}
	if err := writeJSON(os.Stdout, result); err != nil {
		return err
	}
	if !result.Success {
		return cli.Exit("", 2)
	}
	return nil
}

func runBatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one manifest file argument")
	}

	var manifest manifestSpec
	if err := readYAML(c.Args().Get(0), &manifest); err != nil {
		return err
	}
	if len(manifest.Subjects) == 0 {
		return fmt.Errorf("manifest contains no subjects")
	}

	gridSize := manifest.GridSize
	if gridSize == 0 {
		gridSize = c.Float64("grid-size")
	}
	angleBins := manifest.AngleBins
	if angleBins == 0 {
		angleBins = uint32(c.Uint("angle-bins"))
	}

	svc, err := newService(c, gridSize, angleBins)
	if err != nil {
		return err
	}

	outDir := c.String("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	for i, subject := range manifest.Subjects {
		name := subject.Name
		if name == "" {
			name = fmt.Sprintf("subject-%d", i)
		}

		result, err := svc.Enroll(context.Background(), enrollRequest(subject))
		if err != nil {
			return fmt.Errorf("enroll %q: %w", name, err)
		}

		out := filepath.Join(outDir, name+".json")
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := writeJSON(f, result); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", out, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", out, err)
		}
		fmt.Printf("%s\t%s\n", name, result.DID)
	}
	return nil
}

func newService(c *cli.Context, gridSize float64, angleBins uint32) (enrollment.Service, error) {
	mode, err := did.ParseMode(c.String("mode"))
	if err != nil {
		return nil, err
	}
	return enrollment.NewService(enrollment.Params{
		GridSize:       gridSize,
		AngleBins:      angleBins,
		Network:        c.String("network"),
		Mode:           mode,
		PayloadBuilder: did.NewPayloadBuilder(uint32(c.Uint("label")), 0),
		Store:          storage.NewInline(),
		Rng:            rand.Reader,
	}), nil
}

func enrollRequest(subject subjectSpec) *enrollment.EnrollRequest {
	return &enrollment.EnrollRequest{
		Fingers:       fingerInputs(subject.Fingers),
		Quality:       subject.Quality,
		Mode:          subject.Mode,
		Network:       subject.Network,
		WalletAddress: subject.WalletAddress,
		Controllers:   subject.Controllers,
	}
}

func fingerInputs(fingers []fingerSpec) []enrollment.FingerInput {
	out := make([]enrollment.FingerInput, len(fingers))
	for i, f := range fingers {
		out[i] = enrollment.FingerInput{FingerID: f.FingerID, Minutiae: f.Minutiae}
	}
	return out
}

func readYAML(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(w *os.File, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
