// Command boxonctl drives a boxon.Driver over a file of framed messages,
// emitting one JSON object per decoded or failed message.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mtrevisan/boxon"
	"github.com/mtrevisan/boxon/internal/describe"
	"github.com/mtrevisan/boxon/internal/tmpl"
)

func main() {
	var (
		mode  = flag.String("mode", "parse", "Command: parse or describe")
		input = flag.String("i", "", "Input file (required for parse)")
		help  = flag.Bool("help", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Decode a file of framed messages against the built-in example registry:\n")
		fmt.Fprintf(os.Stderr, "  %s -mode parse -i stream.bin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Print the structural description of every registered message:\n")
		fmt.Fprintf(os.Stderr, "  %s -mode describe\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	engine := boxon.NewEngine()
	templates, err := registerExampleMessages(engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error registering messages: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "describe":
		runDescribe(templates)
	case "parse":
		runParse(engine, *input)
	default:
		fmt.Fprintf(os.Stderr, "Error: mode must be 'parse' or 'describe'\n")
		flag.Usage()
		os.Exit(1)
	}
}

func registerExampleMessages(e *boxon.Engine) (map[string]*tmpl.Template, error) {
	templates := map[string]*tmpl.Template{}

	tf, err := boxon.RegisterMessage[telemetryFrame](e)
	if err != nil {
		return nil, fmt.Errorf("registering telemetryFrame: %w", err)
	}
	templates["telemetryFrame"] = tf

	hb, err := boxon.RegisterMessage[heartbeatFrame](e)
	if err != nil {
		return nil, fmt.Errorf("registering heartbeatFrame: %w", err)
	}
	templates["heartbeatFrame"] = hb

	return templates, nil
}

func runDescribe(templates map[string]*tmpl.Template) {
	out := map[string]any{}
	for name, t := range templates {
		out[name] = describe.Describe(t)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding description: %v\n", err)
		os.Exit(1)
	}
}

func runParse(e *boxon.Engine, input string) {
	if input == "" {
		fmt.Fprintf(os.Stderr, "Error: -i (input file) is required for parse\n")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input file %s: %v\n", input, err)
		os.Exit(1)
	}

	d := boxon.NewDriver(e)
	responses := d.Parse(data)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, resp := range responses {
		if err := enc.Encode(toDTO(resp)); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
			os.Exit(1)
		}
	}
}

type responseDTO struct {
	Kind          string `json:"kind"`
	StartBitIndex int    `json:"startBitIndex"`
	Record        any    `json:"record,omitempty"`
	Error         string `json:"error,omitempty"`
	Payload       []byte `json:"payload,omitempty"`
}

func toDTO(r boxon.Response) responseDTO {
	dto := responseDTO{
		Kind:          string(r.Kind),
		StartBitIndex: r.StartBitIndex,
		Record:        r.Record,
		Payload:       r.Payload,
	}
	if r.Error != nil {
		dto.Error = r.Error.Error()
	}
	return dto
}
