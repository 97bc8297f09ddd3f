package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

var (
	colorHeader   = color.New(color.FgCyan, color.Bold).SprintfFunc()
	colorKey      = color.New(color.FgMagenta).SprintfFunc()
	colorValue    = color.New(color.FgWhite, color.Bold).SprintfFunc()
	colorWritable = color.New(color.FgGreen).SprintfFunc()
	colorMuted    = color.New(color.FgHiBlack).SprintfFunc()
)

var propsCmd = &cobra.Command{
	Use:   "props",
	Short: "List the synchronized properties",
	Long: `List every property exposed on the Manager and XWayland objects, with
the window atom it mirrors, its bus signature and whether it is writable.`,
	Example: `  # List all properties
  gamescope-dbus props

  # List only XWayland properties
  gamescope-dbus props --object xwayland

  # List in JSON format
  gamescope-dbus props --format json`,
	Args: cobra.NoArgs,
	RunE: runProps,
}

var (
	propsObject string
	propsFormat string
)

func init() {
	rootCmd.AddCommand(propsCmd)

	propsCmd.Flags().StringVarP(&propsObject, "object", "o", "", "object kind (manager or xwayland)")
	propsCmd.Flags().StringVarP(&propsFormat, "format", "f", "table", "output format (table or json)")
}

type propertyInfo struct {
	Object    string `json:"object"`
	Name      string `json:"name"`
	Atom      string `json:"atom"`
	Signature string `json:"signature"`
	Access    string `json:"access"`
	Default   string `json:"default,omitempty"`
}

func runProps(cmd *cobra.Command, args []string) error {
	var kinds []gamescope.ObjectKind
	switch propsObject {
	case "":
		kinds = []gamescope.ObjectKind{gamescope.KindManager, gamescope.KindXWayland}
	case "manager":
		kinds = []gamescope.ObjectKind{gamescope.KindManager}
	case "xwayland":
		kinds = []gamescope.ObjectKind{gamescope.KindXWayland}
	default:
		return fmt.Errorf("unknown object kind: %s (use 'manager' or 'xwayland')", propsObject)
	}

	var infos []propertyInfo
	for _, k := range kinds {
		for _, d := range gamescope.Descriptors(k) {
			info := propertyInfo{
				Object:    k.Interface(),
				Name:      d.Name,
				Atom:      d.Atom,
				Signature: property.Signature(d),
				Access:    d.Access(),
			}
			if d.Default != nil {
				info.Default = property.Describe(d, *d.Default)
			}
			infos = append(infos, info)
		}
	}

	switch propsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "table":
		return printPropsTable(infos)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", propsFormat)
	}
}

func printPropsTable(infos []propertyInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	current := ""
	for _, info := range infos {
		if info.Object != current {
			if current != "" {
				fmt.Fprintln(w)
			}
			current = info.Object
			fmt.Fprintln(w, colorHeader("%s", info.Object))
		}

		access := colorMuted("%-9s", info.Access)
		if info.Access == "readwrite" {
			access = colorWritable("%-9s", info.Access)
		}
		def := info.Default
		if def == "" {
			def = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			colorKey("%s", info.Name),
			info.Signature,
			access,
			colorMuted("%s", info.Atom),
			def,
		)
	}
	return w.Flush()
}
