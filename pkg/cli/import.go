package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/cli/config"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdImport() *cli.Command {
	var user string
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Owner of the imported definitions",
			Required:    true,
			Sources:     cli.EnvVars("UTMCRAFT_USER"),
			Destination: &user,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Create or update fields, select dependencies and forms from a TOML or YAML file",
		ArgsUsage: "FILE",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one definition file is required")
			}
			def, err := config.LoadDefinition(c.Args().First())
			if err != nil {
				return err
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			report, err := importDefinition(ctx, usecase.New(repo), types.UserID(user), def)
			if err != nil {
				return err
			}
			logging.Default().Info("Definitions imported",
				"user", user,
				"fields", report.Fields,
				"dependencies", report.Dependencies,
				"forms", report.Forms,
			)
			return nil
		},
	}
}

type importReport struct {
	Fields       int
	Dependencies int
	Forms        int
}

// importDefinition stores every entry of def through the same save path as
// the API. Entries whose full title already exists for the user are updated.
// The first failing entry stops the import.
func importDefinition(ctx context.Context, uc *usecase.UseCases, user types.UserID, def *config.Definition) (*importReport, error) {
	report := &importReport{}

	fields, err := def.SortedFields(user)
	if err != nil {
		return nil, err
	}
	existingFields, err := uc.Field.ListFields(ctx, user)
	if err != nil {
		return nil, err
	}
	fieldByTitle := make(map[types.FullTitle]*model.Field, len(existingFields))
	for _, f := range existingFields {
		fieldByTitle[f.FullTitle] = f
	}

	for _, f := range fields {
		if prev, ok := fieldByTitle[f.FullTitle]; ok {
			f.ID = prev.ID
			f.Version = prev.Version
			_, err = uc.Field.UpdateField(ctx, user, f)
		} else {
			_, err = uc.Field.CreateField(ctx, user, f)
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to import field", goerr.V("full_title", f.FullTitle))
		}
		report.Fields++
	}

	existingDeps, err := uc.Dependency.ListDependencies(ctx, user)
	if err != nil {
		return nil, err
	}
	depByTitle := make(map[types.FullTitle]*model.SelectDependency, len(existingDeps))
	for _, d := range existingDeps {
		depByTitle[d.FullTitle] = d
	}

	depIDs := make(map[string]types.DependencyID, len(def.Dependencies))
	for i := range def.Dependencies {
		d := def.Dependencies[i].ToModel(user)
		var saved *model.SelectDependency
		if prev, ok := depByTitle[d.FullTitle]; ok {
			d.ID = prev.ID
			d.Version = prev.Version
			saved, err = uc.Dependency.UpdateDependency(ctx, user, d)
		} else {
			saved, err = uc.Dependency.CreateDependency(ctx, user, d)
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to import select dependency", goerr.V("full_title", d.FullTitle))
		}
		depIDs[saved.Title] = saved.ID
		report.Dependencies++
	}

	existingForms, err := uc.Form.ListForms(ctx, user)
	if err != nil {
		return nil, err
	}
	formByTitle := make(map[types.FullTitle]*model.Form, len(existingForms))
	for _, f := range existingForms {
		if f.Owner == user {
			formByTitle[f.FullTitle] = f
		}
	}

	for i := range def.Forms {
		form := def.Forms[i].ToModel(user, depIDs)
		var saved *model.Form
		if prev, ok := formByTitle[form.FullTitle]; ok {
			form.ID = prev.ID
			form.Version = prev.Version
			saved, err = uc.Form.UpdateForm(ctx, user, form)
		} else {
			saved, err = uc.Form.CreateForm(ctx, user, form)
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to import form", goerr.V("full_title", form.FullTitle))
		}

		for _, grantee := range def.Forms[i].Grants {
			if err := uc.Form.GrantAccess(ctx, user, saved.ID, types.UserID(grantee)); err != nil {
				return nil, goerr.Wrap(err, "failed to grant form access",
					goerr.V("full_title", saved.FullTitle), goerr.V("grantee", grantee))
			}
		}
		report.Forms++
	}

	return report, nil
}
