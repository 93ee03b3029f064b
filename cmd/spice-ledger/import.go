package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/process"
	"github.com/Veraticus/spice-ledger/internal/source"
	"github.com/Veraticus/spice-ledger/internal/tui"
	"github.com/Veraticus/spice-ledger/internal/tui/themes"
)

// asker answers the queries of UI directions.
type asker interface {
	Ask(ctx context.Context, directions importer.Directions) ([]importer.Action, error)
}

// interaction selects how waiting processes are answered.
type interaction struct {
	useTUI  bool
	noInput bool
}

func (i *interaction) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&i.useTUI, "tui", false, "Answer questions in the full screen form")
	cmd.Flags().BoolVar(&i.noInput, "no-input", false, "Stop when questions need answers")
}

func (i interaction) asker(cmd *cobra.Command) asker {
	if i.useTUI {
		return tui.NewPrompter(tui.WithTheme(themes.ByName(viper.GetString("ui.theme"))))
	}
	return cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
}

func importCmd() *cobra.Command {
	var (
		settingsName string
		kind         string
		name         string
		ui           interaction
	)

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import transaction files",
		Long: `Read transaction files, create an import process for them and run it
as far as it goes without your help.

The import settings name a file in the importers directory of the config
directory, or a path to a YAML, JSON or TOML file.`,
		Example: `  # Import a CSV statement with the settings in importers/nordea.yaml
  spice-ledger import --settings nordea statement.csv

  # Import an OFX download with built-in column mapping
  spice-ledger import download.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sourceKind := source.Kind(kind)
			if sourceKind == "" && settingsName == "" {
				sourceKind = source.KindOf(args[0])
			}
			settings, path, err := loadSettings(settingsName, sourceKind)
			if err != nil {
				return common.NewUserError("Failed to load import settings", err)
			}

			readOpts := append(settings.SourceOptions(), source.WithLogger(slog.Default()))
			files := make([]model.ImportFile, 0, len(args))
			for _, arg := range args {
				file, err := source.Read(arg, settings.Kind, readOpts...)
				if err != nil {
					return common.NewUserError("Failed to read "+arg, err)
				}
				files = append(files, file)
			}

			importConfig := settings.Config.Clone()
			if path != "" {
				importConfig[configSettings] = path
				if importConfig.String(configPlugin) == "" {
					importConfig[configPlugin] = pluginName(path)
				}
			}

			progress := cli.NewProgress(cmd.OutOrStdout(), files[0].Name)
			a, err := openApp(ctx, settings.Format, process.WithProgress(progress.Report))
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.runner.Create(ctx, name, files, importConfig)
			if err != nil {
				return err
			}
			cmd.Println(cli.FormatInfo(fmt.Sprintf("Created import #%d %s", p.ID, p.Name)))

			return drive(ctx, cmd, a, p.ID, progress, ui, false)
		},
	}

	cmd.Flags().StringVarP(&settingsName, "settings", "s", "", "Import settings name or file")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Source kind: csv, text, ofx, pdf or json (default: from settings or file extension)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Process name (default: first file name)")
	ui.addFlags(cmd)

	return cmd
}

func runCmd() *cobra.Command {
	var (
		retry bool
		ui    interaction
	)

	cmd := &cobra.Command{
		Use:   "run <process-id>",
		Short: "Continue an import process",
		Long: `Continue an import process from its last stored step. A crashed process
is retried with --retry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			progress := cli.NewProgress(cmd.OutOrStdout(), "#"+args[0])
			a, _, err := openProcessApp(ctx, id, process.WithProgress(progress.Report))
			if err != nil {
				return err
			}
			defer a.Close()

			return drive(ctx, cmd, a, id, progress, ui, retry)
		},
	}

	cmd.Flags().BoolVar(&retry, "retry", false, "Retry the operation that crashed")
	ui.addFlags(cmd)

	return cmd
}

func answerCmd() *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "answer <process-id>",
		Short: "Answer the questions of a waiting import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			progress := cli.NewProgress(cmd.OutOrStdout(), "#"+args[0])
			a, p, err := openProcessApp(ctx, id, process.WithProgress(progress.Report))
			if err != nil {
				return err
			}
			defer a.Close()

			if p.Status != model.StatusWaiting {
				cmd.Println(cli.FormatInfo(fmt.Sprintf("Import #%d is %s and has no questions.", id, p.Status)))
				return nil
			}
			ui := interaction{useTUI: useTUI}
			if _, err := ask(ctx, a, id, ui.asker(cmd)); err != nil {
				return err
			}
			p, err = a.store.GetProcess(ctx, id)
			if err != nil {
				return err
			}
			progress.Finish(p)
			return report(cmd, p)
		},
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "Answer questions in the full screen form")

	return cmd
}

func rollbackCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback <process-id>",
		Short: "Remove everything an import has stored",
		Long: `Roll back an executed import. Its transactions are removed from the
database and the process ends ROLLEDBACK. A checkpoint is made first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, p, err := openProcessApp(ctx, id)
			if err != nil {
				return err
			}
			defer a.Close()

			if !force {
				ok, err := confirm(cmd, fmt.Sprintf("Roll back import #%d %s?", id, p.Name))
				if err != nil || !ok {
					cmd.Println(cli.SubtleStyle.Render("Rollback canceled."))
					return err
				}
			}

			p, err = a.runner.Rollback(ctx, id)
			if err != nil {
				return err
			}
			return report(cmd, p)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

// drive runs a process and answers its questions until it needs nothing
// more, the user stops answering or the input ends.
func drive(ctx context.Context, cmd *cobra.Command, a *app, id int64, progress *cli.Progress, ui interaction, retry bool) error {
	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	interrupts.SetResumeHint(fmt.Sprintf("spice-ledger run %d", id))
	ctx, cancel := interrupts.HandleInterrupts(ctx)
	defer cancel()

	var (
		p   *model.Process
		err error
	)
	if retry {
		p, err = a.runner.Input(ctx, id, importer.RetryAction())
	} else {
		p, err = a.runner.Run(ctx, id)
	}
	if err != nil {
		progress.Finish(p)
		return err
	}

	prompter := ui.asker(cmd)
	for p.Status == model.StatusWaiting && !ui.noInput {
		progress.Finish(p)
		answered, err := ask(ctx, a, id, prompter)
		if err != nil {
			return err
		}
		if !answered {
			break
		}
		if p, err = a.store.GetProcess(ctx, id); err != nil {
			return err
		}
	}

	progress.Finish(p)
	return report(cmd, p)
}

// ask shows the current questions and applies the answers. It reports
// whether anything was answered.
func ask(ctx context.Context, a *app, id int64, prompter asker) (bool, error) {
	_, directions, err := a.runner.State(ctx, id)
	if err != nil {
		return false, err
	}
	actions, err := prompter.Ask(ctx, directions)
	if err != nil {
		if errors.Is(err, tui.ErrAborted) || errors.Is(err, cli.ErrInputCancelled) {
			return false, nil
		}
		return false, err
	}
	for _, action := range actions {
		p, err := a.runner.Input(ctx, id, action)
		if err != nil {
			return false, err
		}
		if p.Status == model.StatusCrashed {
			break
		}
	}
	return len(actions) > 0, nil
}

func report(cmd *cobra.Command, p *model.Process) error {
	line := fmt.Sprintf("Import #%d %s: %s", p.ID, p.Name, cli.FormatStatus(p.Status))
	switch p.Status {
	case model.StatusSucceeded, model.StatusRolledBack:
		cmd.Println(cli.FormatSuccess(line))
	case model.StatusWaiting, model.StatusIncomplete:
		cmd.Println(cli.FormatWarning(line))
		cmd.Println(cli.SubtleStyle.Render(fmt.Sprintf("Continue with: spice-ledger answer %d", p.ID)))
	default:
		cmd.Println(cli.FormatError(line))
		if p.Error != "" {
			cmd.Println(cli.RenderBox("Error", cli.ErrorStyle.Render(p.Error)))
			cmd.Println(cli.SubtleStyle.Render(fmt.Sprintf("Retry with: spice-ledger run --retry %d", p.ID)))
		}
	}
	return nil
}

func parseProcessID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError("Invalid process id "+arg, err)
	}
	return id, nil
}

// confirm asks a yes or no question on the command streams.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	cmd.Print(cli.FormatPrompt(question+" (y/N)") + " ")
	line, err := cli.NewLineReader(cmd.InOrStdin()).ReadLine(cmd.Context())
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return line == "y" || line == "Y" || line == "yes", nil
}
