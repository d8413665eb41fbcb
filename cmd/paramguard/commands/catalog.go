package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/constraint"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Parameter catalog inspection",
		Long: `Inspect the parameter catalog the engine validates against.

The catalog defines typed parameters with constraints, their MO-class
hierarchy with cardinalities, declared class relationships, and
cross-parameter rules.`,
	}

	cmd.AddCommand(newCatalogInfoCommand())
	cmd.AddCommand(newCatalogLintCommand())

	return cmd
}

func newCatalogInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show catalog summary",
		Long:  `Show counts and per-class parameter distribution for the catalog.`,
		Example: `  # Summarize the built-in catalog
  paramguard catalog info

  # Summarize a catalog export
  paramguard catalog info -c catalog.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.NewLoader(log.Logger).Load(catalogPath)
			if err != nil {
				return err
			}

			crossParams := 0
			for _, group := range cat.CrossParams {
				crossParams += len(group)
			}

			if jsonOutput {
				out, err := json.MarshalIndent(map[string]interface{}{
					"source":                  cat.Source,
					"parameters":              cat.Len(),
					"mo_classes":              len(cat.MOClasses),
					"relationships":           len(cat.Relationships),
					"cross_param_constraints": crossParams,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("source:                  %s\n", cat.Source)
			fmt.Printf("parameters:              %d\n", cat.Len())
			fmt.Printf("mo classes:              %d\n", len(cat.MOClasses))
			fmt.Printf("relationships:           %d\n", len(cat.Relationships))
			fmt.Printf("cross-param constraints: %d\n", crossParams)

			byClass := make(map[string]int)
			for _, p := range cat.Parameters {
				cls := "(unscoped)"
				if leaf := p.LeafClass(); leaf != "" {
					cls = leaf
				}
				byClass[cls]++
			}
			classes := make([]string, 0, len(byClass))
			for cls := range byClass {
				classes = append(classes, cls)
			}
			sort.Strings(classes)
			for _, cls := range classes {
				fmt.Printf("  %-30s %d parameters\n", cls, byClass[cls])
			}
			return nil
		},
	}
	return cmd
}

func newCatalogLintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check the catalog for internal inconsistencies",
		Long: `Check the catalog for definitions that can never hold:

  - parameter defaults that violate the parameter's own constraints
  - relationships referencing classes the catalog does not declare
  - cross-parameter rules referencing unknown parameters

Lint findings point at catalog data problems, not configuration
problems.`,
		Example: `  # Lint a catalog export before rolling it out
  paramguard catalog lint -c catalog.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.NewLoader(log.Logger).Load(catalogPath)
			if err != nil {
				return err
			}

			findings := lintCatalog(cat)

			if jsonOutput {
				out, err := json.MarshalIndent(findings, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				for _, f := range findings {
					fmt.Println(f)
				}
				fmt.Printf("%d finding(s) in %s\n", len(findings), cat.Source)
			}

			if len(findings) > 0 {
				return fmt.Errorf("catalog has %d lint finding(s)", len(findings))
			}
			return nil
		},
	}
	return cmd
}

// lintCatalog returns human-readable findings, deterministically ordered.
func lintCatalog(cat *catalog.Catalog) []string {
	var findings []string

	// Defaults must satisfy their own constraints.
	processor := constraint.NewProcessor(log.Logger, constraint.Options{}, nil)
	for _, p := range cat.Parameters {
		if p.Default == nil {
			continue
		}
		for _, d := range processor.ValidateParameter(p, p.Default) {
			findings = append(findings,
				fmt.Sprintf("parameter %s: default %v violates its own constraints: %s",
					p.Name, p.Default, d.Message))
		}
	}

	// Relationships must reference declared classes.
	for _, rel := range cat.Relationships {
		if _, ok := cat.Class(rel.Source); !ok {
			findings = append(findings,
				fmt.Sprintf("relationship %s %s %s: unknown source class", rel.Source, rel.Type, rel.Target))
		}
		if _, ok := cat.Class(rel.Target); !ok {
			findings = append(findings,
				fmt.Sprintf("relationship %s %s %s: unknown target class", rel.Source, rel.Type, rel.Target))
		}
	}

	// Cross-parameter rules must reference known parameters.
	ids := make([]string, 0, len(cat.CrossParams))
	for id := range cat.CrossParams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, cpc := range cat.CrossParams[id] {
			for _, name := range cpc.Parameters {
				if _, ok := cat.Lookup(name); !ok {
					findings = append(findings,
						fmt.Sprintf("cross-parameter rule %s: unknown parameter %s", id, name))
				}
			}
		}
	}

	sort.Strings(findings)
	return findings
}
