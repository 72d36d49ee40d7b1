package cli

import (
	"fmt"
	"io"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/infra/filesystem"
	"live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/report"

	"github.com/spf13/cobra"
)

// NewSweepCmd removes students and answers whose session no longer exists.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete students and answers left behind by deleted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := app.NewSweeper(b.store, logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d students and %d answers\n", res.Students, res.Answers)
			return nil
		},
	}
}

// NewExportCmd writes a session export, or all sessions, to stdout.
func NewExportCmd(configPath *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Export one session (JSON or CSV) or every session (JSON)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unsupported format %q", format)
			}
			if len(args) == 0 && format != "json" {
				return fmt.Errorf("exporting every session only supports json")
			}
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			reports := app.NewReports(b.store, logger)
			return writeExport(cmd, reports, args, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	return cmd
}

func writeExport(cmd *cobra.Command, reports *app.Reports, args []string, format string, w io.Writer) error {
	ctx := cmd.Context()
	if len(args) == 0 {
		all, err := reports.ExportAll(ctx)
		if err != nil {
			return err
		}
		return report.WriteJSON(w, all)
	}
	if format == "csv" {
		snap, err := reports.Load(ctx, args[0])
		if err != nil {
			return err
		}
		return report.WriteCSV(w, snap)
	}
	export, err := reports.Export(ctx, args[0])
	if err != nil {
		return err
	}
	return report.WriteJSON(w, export)
}

// NewSeedCmd copies every questionnaire file of a directory into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questionnaire JSON files into the questionnaires table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Quiz.QuestionnaireDir
			}
			if dir == "" {
				return fmt.Errorf("no questionnaire directory given")
			}
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.pool == nil {
				return fmt.Errorf("postgres url not configured")
			}

			files := filesystem.NewQuestionnaireLoader(dir)
			names, err := files.Names()
			if err != nil {
				return fmt.Errorf("list questionnaires: %w", err)
			}
			target := postgres.NewQuestionnaireLoader(b.pool)
			for _, name := range names {
				q, err := files.LoadQuestionnaire(cmd.Context(), name)
				if err != nil {
					return err
				}
				if err := target.SaveQuestionnaire(cmd.Context(), q); err != nil {
					return err
				}
				logger.Info("questionnaire stored", "name", name, "questions", len(q.Questions))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d questionnaires\n", len(names))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "questionnaire directory (defaults to quiz.questionnaire_dir)")
	return cmd
}
