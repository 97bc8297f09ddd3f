package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/gamescope-dbus/internal/bus"
	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
)

var getCmd = &cobra.Command{
	Use:   "get [OBJECT [PROPERTY]]",
	Short: "Read properties from a running daemon",
	Long: `Read properties over the bus from a running gamescope-dbus.

Without arguments the exposed objects are listed. With an object, all of
its cached properties are printed; with a property, only that value.`,
	Example: `  # List exposed objects
  gamescope-dbus get

  # Show all Manager properties
  gamescope-dbus get manager

  # Show the focused app
  gamescope-dbus get manager FocusedApp

  # Show an XWayland instance as JSON
  gamescope-dbus get xwayland0 --format json`,
	Args: cobra.MaximumNArgs(2),
	RunE: runGet,
}

var getFormat string

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getFormat, "format", "f", "table", "output format (table or json)")
}

func newClient() (*bus.Client, error) {
	configMgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := configMgr.Get()
	return bus.NewClient(cfg.Bus.Type, cfg.Bus.Name)
}

func runGet(cmd *cobra.Command, args []string) error {
	if getFormat != "table" && getFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", getFormat)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		return listObjects(client)
	}

	obj, err := gamescope.ParseObject(args[0])
	if err != nil {
		return err
	}

	if len(args) == 2 {
		value, err := client.Get(obj, args[1])
		if err != nil {
			return err
		}
		if getFormat == "json" {
			return printJSON(map[string]any{args[1]: value})
		}
		fmt.Println(colorValue("%v", value))
		return nil
	}

	values, err := client.GetAll(obj)
	if err != nil {
		return err
	}
	if getFormat == "json" {
		return printJSON(values)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println(colorHeader("%s", obj.Name()))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%s\n", colorKey("%s", name), colorValue("%v", values[name]))
	}
	return w.Flush()
}

func listObjects(client *bus.Client) error {
	objs, err := client.ManagedObjects()
	if err != nil {
		return err
	}

	if getFormat == "json" {
		names := make([]string, len(objs))
		for i, obj := range objs {
			names[i] = obj.Name()
		}
		return printJSON(names)
	}

	if len(objs) == 0 {
		fmt.Println(colorMuted("No objects exposed."))
		return nil
	}
	for _, obj := range objs {
		fmt.Printf("%s  %s\n", colorKey("%-12s", obj.Name()), colorMuted("%s", obj.Path()))
	}
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
