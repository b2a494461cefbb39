package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// schemaDump is the YAML shape printed per sink.
type schemaDump struct {
	Sink        string            `yaml:"sink"`
	Fingerprint string            `yaml:"fingerprint"`
	Fields      []schemaDumpField `yaml:"fields"`
	Warnings    []string          `yaml:"warnings,omitempty"`
}

type schemaDumpField struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Required bool     `yaml:"required,omitempty"`
	Options  []string `yaml:"options,omitempty"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print each configured sink's schema as the clipper sees it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClipper(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dumps := make([]schemaDump, 0, len(env.Stores))
		for _, store := range env.Stores {
			snap, err := env.Cache.Get(ctx, store.ID())
			if err != nil {
				return eris.Wrapf(err, "fetch schema for sink %s", store.ID())
			}
			dumps = append(dumps, toDump(snap))
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		for _, d := range dumps {
			if err := enc.Encode(d); err != nil {
				return eris.Wrap(err, "encode schema")
			}
		}
		return nil
	},
}

func toDump(snap *model.SchemaSnapshot) schemaDump {
	d := schemaDump{
		Sink:        snap.SinkID,
		Fingerprint: snap.Fingerprint,
		Fields:      make([]schemaDumpField, 0, len(snap.Fields)),
	}
	for _, f := range snap.Fields {
		d.Fields = append(d.Fields, schemaDumpField{
			Name:     f.Name,
			Kind:     string(f.Kind),
			Required: f.Required,
			Options:  f.Options,
		})
	}
	for _, w := range snap.Warnings {
		d.Warnings = append(d.Warnings, w.Field+": "+w.Message)
	}
	return d
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
