// Command inspect derives and displays wire layouts for a catalog of sample
// aggregate types, and can drive a demonstration exchange over an in-process
// world to show descriptors in motion.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/typemesh/wirepack/reflector"
)

type config struct {
	WorldSize int  `toml:"world_size"`
	Elements  int  `toml:"elements"`
	Verbose   bool `toml:"verbose"`
}

func defaultConfig() config {
	return config{WorldSize: 4, Elements: 8}
}

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML config file")
		typeName    = flag.String("type", "", "Show the layout of one catalog type")
		list        = flag.Bool("list", false, "List catalog types and exit")
		demo        = flag.Bool("demo", false, "Run a collective exchange over an in-process world")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg := defaultConfig()
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: config: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *typeName, *list, *demo); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, typeName string, list, demo bool) error {
	entries := catalog()

	if list {
		for _, e := range entries {
			fmt.Println(e.name)
		}
		return nil
	}

	if typeName != "" {
		for _, e := range entries {
			if e.name == typeName {
				l, err := e.derive()
				if err != nil {
					return err
				}
				fmt.Println(renderLayout(e.name, l))
				return nil
			}
		}
		return fmt.Errorf("unknown catalog type %q", typeName)
	}

	if demo {
		return runDemo(cfg)
	}

	for _, e := range entries {
		l, err := e.derive()
		if err != nil {
			fmt.Printf("%s: %v\n\n", e.name, err)
			continue
		}
		fmt.Println(renderLayout(e.name, l))
		fmt.Println()
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	colStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	cellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D0D0D0"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// renderLayout formats one derived layout as an offset table sized to the
// terminal.
func renderLayout(name string, l *reflector.Layout) string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	title := headerStyle.Render(fmt.Sprintf("%s  size=%d align=%d", name, l.Size, l.Align))
	head := colStyle.Render(fmt.Sprintf("  %-16s %-12s %8s %8s", "member", "kind", "offset", "extent"))

	rows := make([]string, 0, len(l.Members)+3)
	rows = append(rows, title, head)
	for _, m := range l.Members {
		row := fmt.Sprintf("  %-16s %-12s %8d %8d", m.Name, m.Kind, m.Offset, m.Extent)
		if len(row) > width {
			row = row[:width]
		}
		rows = append(rows, cellStyle.Render(row))
	}
	if l.Explicit {
		rows = append(rows, noteStyle.Render("  (author-declared member list)"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
