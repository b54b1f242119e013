package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/metadata"
)

// ErrInvalidSidecars is returned when validate finds a bad sidecar.
var ErrInvalidSidecars = errors.New("invalid sidecars")

var validateCmd = &cobra.Command{
	Use:   "validate [sidecar...]",
	Short: "Validate metadata sidecars",
	Long: `Check sidecar files against the metadata schema and the semantic rules
the indexer applies. Sidecars inside a repository are also checked against
their location (entity and workflows/ or streams/ subtree).`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{annotationOffline: "true"},
	RunE:        runValidate,
}

var schemaCmd = &cobra.Command{
	Use:         "schema",
	Short:       "Print the metadata sidecar JSON Schema",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOffline: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := metadata.Schema()
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	validator, err := metadata.NewValidator()
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		if err := validateSidecar(validator, path); err != nil {
			failed++
			cmd.Printf("FAIL %s: %v\n", path, err)
			continue
		}
		cmd.Printf("ok   %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSidecars, failed, len(args))
	}
	return nil
}

func validateSidecar(v *metadata.Validator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rec, err := v.Decode(data)
	if err != nil {
		return err
	}
	if entity, metaRel, ok := sidecarLocation(path); ok {
		return metadata.ValidateAt(rec, entity, metaRel)
	}
	return nil
}

// sidecarLocation finds the entity and metadata-relative path of a sidecar
// stored under entities/{entity}/metadata/.
func sidecarLocation(path string) (entity, metaRel string, ok bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(abs), "/")
	for i := len(parts) - 4; i >= 0; i-- {
		if parts[i] == layout.EntitiesDir && parts[i+2] == layout.MetadataDir {
			return parts[i+1], strings.Join(parts[i+3:], "/"), true
		}
	}
	return "", "", false
}
