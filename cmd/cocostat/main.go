// Command cocostat prints box statistics for a COCO annotation file.
package main

import (
	"flag"
	"fmt"
	"os"

	"box-annotator/internal/coco"
)

func main() {
	path := flag.String("coco", "", "Path to COCO annotations (JSON)")
	tol := flag.Float64("dup-tol", 0.5, "Pixel tolerance for duplicate boxes")
	parents := flag.Bool("parents", true, "Infer parent boxes by containment")
	flag.Parse()

	if *path == "" && flag.NArg() > 0 {
		*path = flag.Arg(0)
	}
	if *path == "" {
		fmt.Println("Usage: cocostat -coco <annotations.json> [-dup-tol 0.5] [-parents=false]")
		os.Exit(1)
	}

	root, err := coco.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load annotations: %v\n", err)
		os.Exit(1)
	}

	if err := root.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; malformed boxes are not counted\n", err)
	}

	report := Analyze(root, Options{DuplicateTolerance: *tol, InferParents: *parents})
	fmt.Printf("Loaded %s\n\n", *path)
	if err := report.Write(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		os.Exit(1)
	}
}
