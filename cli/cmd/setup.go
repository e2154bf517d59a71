package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pulseline-io/pulseline/builtin"
	"github.com/pulseline-io/pulseline/cli/reader"
	"github.com/pulseline-io/pulseline/config"
	"github.com/pulseline-io/pulseline/procedure"
)

// defaultConfigFile is consulted when --config is not given.
const defaultConfigFile = "pulseline.yaml"

// loadConfig resolves the effective configuration. A missing default
// config file yields an empty config; a missing explicit --config path
// is an error.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigFile); err != nil {
		return &config.Config{}, nil
	}
	return config.Load(defaultConfigFile)
}

// storageDir resolves the survey directory: flag over config over cwd.
func storageDir(c *cli.Context, cfg *config.Config) string {
	if dir := c.String("storage-dir"); dir != "" {
		return dir
	}
	if cfg.Storage.Dir != "" {
		return cfg.Storage.Dir
	}
	return "."
}

// newReader builds the read-side access layer for the resolved survey
// directory.
func newReader(c *cli.Context, cfg *config.Config) reader.Reader {
	return reader.NewManifestReader(storageDir(c, cfg))
}

// buildRegistry assembles the procedure registry: builtins plus the
// configured script directory.
func buildRegistry(c *cli.Context, cfg *config.Config) (*procedure.Registry, error) {
	scriptDir := c.String("script-dir")
	if scriptDir == "" {
		scriptDir = cfg.Procedures.ScriptDir
	}
	reg := procedure.NewRegistry(scriptDir)
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadProcedure resolves name through the registry. A load failure
// degrades to the LOST variant instead of raising, with parameter
// values recovered from the newest persisted manifest so the failure
// stays diagnosable.
func loadProcedure(c *cli.Context, cfg *config.Config, reg *procedure.Registry, name string) *procedure.Procedure {
	spec, lerr := reg.Load(name)
	if lerr == nil {
		return procedure.New(spec)
	}
	return lerr.AsLost(recoverParams(storageDir(c, cfg), name))
}

// recoverParams reads parameter values from the most recent manifest
// persisted for name. Missing or unreadable manifests yield nil.
func recoverParams(dir, name string) map[string]any {
	rd := reader.NewManifestReader(dir)
	items, err := rd.ListRuns(reader.ListRunsOptions{Procedure: name, Limit: 1})
	if err != nil || len(items) == 0 {
		return nil
	}
	resp, err := rd.InspectRun(items[0].RunID)
	if err != nil {
		return nil
	}
	return resp.Parameters
}

// parseParams converts repeated --param k=v flags into typed values.
// Values go through the YAML scalar parser so "4000" binds as an int,
// "2.5" as a float, and anything else as a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q (want name=value)", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		values[name] = v
	}
	return values, nil
}

// loadJobFile reads a YAML file of parameter values.
func loadJobFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	return values, nil
}
