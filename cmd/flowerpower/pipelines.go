package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/legout/flowerpower-sub010/config"
)

var listPipelinesCmd = &cobra.Command{
	Use:   "list-pipelines",
	Short: "List every registered and on-disk pipeline",
	Args:  cobra.NoArgs,
	RunE:  runListPipelines,
}

var saveDagCmd = &cobra.Command{
	Use:   "save-dag <pipeline>",
	Short: "Write a pipeline's composed graph as a Graphviz DOT file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaveDag,
}

var (
	listFormat string
	dagOutput  string
)

func init() {
	rootCmd.AddCommand(listPipelinesCmd, saveDagCmd)

	listPipelinesCmd.Flags().StringVar(&listFormat, "format", "table", "Output format (table|json|yaml)")
	saveDagCmd.Flags().StringVar(&dagOutput, "output-path", "", "Target file (default: <pipeline>.dot)")
}

func runListPipelines(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	names := m.ListPipelines()
	switch listFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	case "yaml":
		out, err := yaml.Marshal(names)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	case "table":
		fmt.Println("PIPELINE")
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q, expected table, json, or yaml", listFormat)
}

func runSaveDag(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	dot, err := m.ExportDOT(args[0], config.Overrides{})
	if err != nil {
		return err
	}

	path := dagOutput
	if path == "" {
		path = args[0] + ".dot"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(dot), 0o644); err != nil {
		return err
	}
	fmt.Printf("graph written to %s\n", path)
	return nil
}
