// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command trajconvert converts an exported trajectory JSON file into
// the structured interaction format used by downstream pipelines.
//
// Usage:
//
//	trajconvert input.json output.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/convert"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/format"
	"github.com/AleutianAI/TrajectoryStudio/services/trajectory/normalize"
)

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", inputPath, err)
	}

	det, err := format.Detect(raw)
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", inputPath, err)
	}
	res, err := normalize.Normalize(det, filepath.Base(inputPath))
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", inputPath, err)
	}

	entries := convert.Convert(res.Trajectory)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", outputPath, err)
	}

	fmt.Printf("Conversion successful! Output saved to: %s\n", outputPath)
	fmt.Printf("Converted %d entries.\n", len(entries))
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "trajconvert <input.json> <output.json>",
		Short: "Convert a trajectory file to the structured interaction format",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
