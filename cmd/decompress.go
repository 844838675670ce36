package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	decompressContextFile string
	decompressInputFile   string
	decompressDirection   string
)

var decompressCmd = &cobra.Command{
	Use:   "decompress",
	Short: "Decompress hex-encoded compressed packets",
	Long: `Read hex-encoded compressed packets (one per line, the format emitted by
"schc compress") and print the reconstructed packets as hex.

Examples:
  schc decompress -x context.yaml -i packets.hex
  schc compress -x context.yaml -i capture.pcap | schc decompress -x context.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initRuntime(); err != nil {
			exitWithError("failed to initialise runtime", err)
		}
		runDecompressCommand()
	},
}

func init() {
	decompressCmd.Flags().StringVarP(&decompressContextFile, "context", "x", "", "context file (required)")
	decompressCmd.Flags().StringVarP(&decompressInputFile, "input", "i", "", "input file, - for stdin")
	decompressCmd.Flags().StringVarP(&decompressDirection, "direction", "d", "Up", "packet direction (Up or Dw)")
	decompressCmd.MarkFlagRequired("context")
}

func runDecompressCommand() {
	eng, dir := buildEngine(decompressContextFile, decompressDirection)

	in := os.Stdin
	if decompressInputFile != "" && decompressInputFile != "-" {
		f, err := os.Open(decompressInputFile)
		if err != nil {
			exitWithError("failed to open input", err)
		}
		defer f.Close()
		in = f
	}

	packets, failures := 0, 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data, err := hex.DecodeString(line)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "line %d: %v\n", packets+failures, err)
			continue
		}
		packet, err := eng.DecompressBytes(data, dir)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "line %d: %v\n", packets+failures, err)
			continue
		}
		packets++
		fmt.Printf("%s\n", hex.EncodeToString(packet))
	}
	if err := scanner.Err(); err != nil {
		exitWithError("failed to read input", err)
	}

	fmt.Fprintf(os.Stderr, "%d packet(s) decompressed, %d failure(s)\n", packets, failures)
}
