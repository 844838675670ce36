package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	schccontext "lowpan.xyz/schc/internal/context"
	"lowpan.xyz/schc/internal/source/file"
	"lowpan.xyz/schc/pkg/engine"
	"lowpan.xyz/schc/pkg/schc"
)

var (
	compressContextFile string
	compressInputFile   string
	compressDirection   string
)

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress the packets of a pcap file",
	Long: `Read packets from a pcap capture file, compress each one against the
given context and print the compressed streams as hex.

Examples:
  schc compress -x context.yaml -i capture.pcap
  schc compress -x context.yaml -i capture.pcap -d Dw`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initRuntime(); err != nil {
			exitWithError("failed to initialise runtime", err)
		}
		runCompressCommand()
	},
}

func init() {
	compressCmd.Flags().StringVarP(&compressContextFile, "context", "x", "", "context file (required)")
	compressCmd.Flags().StringVarP(&compressInputFile, "input", "i", "", "pcap file to read (required)")
	compressCmd.Flags().StringVarP(&compressDirection, "direction", "d", "Up", "packet direction (Up or Dw)")
	compressCmd.MarkFlagRequired("context")
	compressCmd.MarkFlagRequired("input")
}

func runCompressCommand() {
	eng, dir := buildEngine(compressContextFile, compressDirection)

	f, err := os.Open(compressInputFile)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	src, err := file.Open(compressInputFile, f)
	if err != nil {
		exitWithError("failed to read capture", err)
	}
	defer src.Close()

	packets, failures := 0, 0
	for {
		frame, _, err := src.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			exitWithError("failed to read packet", err)
		}
		data, err := src.NetworkPayload(frame)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "packet %d: %v\n", packets+failures, err)
			continue
		}
		compressed, err := eng.CompressPacket(data, dir)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "packet %d: %v\n", packets+failures, err)
			continue
		}
		packets++
		fmt.Printf("%s\n", hex.EncodeToString(compressed.ByteAligned()))
	}

	fmt.Fprintf(os.Stderr, "%d packet(s) compressed, %d failure(s)\n", packets, failures)
}

// buildEngine loads a context file and constructs the engine every packet
// command starts from.
func buildEngine(contextPath, direction string) (*engine.Engine, schc.Direction) {
	dir, err := schc.ParseDirection(direction)
	if err != nil {
		exitWithError("invalid direction", err)
	}
	ctx, err := schccontext.Load(contextPath)
	if err != nil {
		exitWithError("failed to load context", err)
	}
	eng, err := engine.New(ctx)
	if err != nil {
		exitWithError("failed to build engine", err)
	}
	return eng, dir
}
