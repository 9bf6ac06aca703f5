package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/vector"
)

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// readEmbeddings reads a JSON file holding either one embedding or a list of embeddings.
func readEmbeddings(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embedding file: %w", err)
	}

	var many [][]float64
	if err := json.Unmarshal(data, &many); err == nil {
		out := make([][]float32, 0, len(many))
		for _, e := range many {
			out = append(out, vector.FromFloat64(e))
		}
		return out, nil
	}

	var one []float64
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parsing embedding file %s: %w", path, err)
	}
	return [][]float32{vector.FromFloat64(one)}, nil
}

// readImages reads every image file in paths.
func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}
