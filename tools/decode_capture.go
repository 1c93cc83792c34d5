//go:build ignore

// decode_capture runs a capture of the receiver's serial output through the
// frame reader and decoder and prints what it found.
//
// A capture is either the raw bytes (e.g. from `cat /dev/ttyUSB0 > cap.bin`)
// or a text file of hex bytes, whitespace allowed.
//
//	go run tools/decode_capture.go cap.bin
//	go run tools/decode_capture.go -hex cap.txt
package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

// Statistics tracks decoding results
type Statistics struct {
	Frames      int
	BadChecksum int
	Dropped     map[string]int
	Displays    map[string]int
	Types       map[byte]int
}

func main() {
	hexInput := flag.Bool("hex", false, "Input is hex text rather than raw bytes")
	verbose := flag.Bool("v", false, "Print every decoded frame")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: decode_capture [-hex] [-v] <capture-file>")
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error reading capture: %v\n", err)
		os.Exit(1)
	}
	if *hexInput {
		data, err = hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			fmt.Printf("Error decoding hex: %v\n", err)
			os.Exit(1)
		}
	}

	stats := Statistics{
		Dropped:  make(map[string]int),
		Displays: make(map[string]int),
		Types:    make(map[byte]int),
	}
	state := display.New()

	fr := protocol.NewFrameReader(bufio.NewReader(bytes.NewReader(data)))
	for {
		raw, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !protocol.IsFramingError(err) {
				fmt.Printf("Error reading frames: %v\n", err)
				os.Exit(1)
			}
			stats.Dropped[dropReason(err)]++
			continue
		}

		resp, err := protocol.Decode(raw)
		if err != nil {
			stats.Dropped["short"]++
			continue
		}

		stats.Frames++
		stats.Types[resp.CommandType]++
		if resp.BadChecksum {
			stats.BadChecksum++
		}
		u := state.Update(resp)
		stats.Displays[fmt.Sprintf("%q %q", u.Source.String(), u.Record.String())]++

		if *verbose {
			fmt.Println(resp)
		}
	}

	printStats(stats, state)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNotFrameStart):
		return "not_frame_start"
	case errors.Is(err, protocol.ErrFrameRestarted):
		return "restarted"
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return "truncated"
	default:
		return "other"
	}
}

func printStats(stats Statistics, state *display.State) {
	fmt.Println("=== Capture Summary ===")
	fmt.Printf("Frames decoded:   %d\n", stats.Frames)
	fmt.Printf("Bad checksums:    %d\n", stats.BadChecksum)

	if len(stats.Dropped) > 0 {
		fmt.Println("\nDropped:")
		for _, reason := range sortedKeys(stats.Dropped) {
			fmt.Printf("  %-16s %d\n", reason, stats.Dropped[reason])
		}
	}

	fmt.Println("\nFrame types:")
	types := make([]int, 0, len(stats.Types))
	for t := range stats.Types {
		types = append(types, int(t))
	}
	sort.Ints(types)
	for _, t := range types {
		fmt.Printf("  0x%02x  %d\n", t, stats.Types[byte(t)])
	}

	fmt.Println("\nDisplays seen:")
	for _, d := range sortedKeys(stats.Displays) {
		fmt.Printf("  %-20s %d\n", d, stats.Displays[d])
	}

	fmt.Printf("\nFinal panel: %s (power %s)\n", state, state.PowerState())
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
