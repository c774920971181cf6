// Command analyze runs the technical analysis over a price series read from
// a file or stdin and prints the result as JSON.
//
//	analyze prices.json
//	echo '{"prices":[101.2,102.8,...]}' | analyze
//	echo '[101.2,102.8,...]' | analyze -indent=false
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"crypto-analyzer/internal/analysis"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	indent := fs.Bool("indent", true, "Pretty-print the JSON result")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := stdin
	if path := fs.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "analyze: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: read input: %v\n", err)
		return 1
	}
	prices, err := parsePrices(data)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return 1
	}

	result, err := analysis.Analyze(prices)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "analyze: write result: %v\n", err)
		return 1
	}
	return 0
}

// parsePrices accepts {"prices":[...]} or a bare JSON array of numbers.
func parsePrices(data []byte) ([]float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}

	if data[0] == '[' {
		var prices []float64
		if err := json.Unmarshal(data, &prices); err != nil {
			return nil, fmt.Errorf("invalid price array: %w", err)
		}
		return prices, nil
	}

	var req struct {
		Prices *[]float64 `json:"prices"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid price data: %w", err)
	}
	if req.Prices == nil {
		return nil, errors.New(`invalid price data: missing "prices" array`)
	}
	return *req.Prices, nil
}
