package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/packages"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// pollInterval is how often the install command refreshes task progress.
const pollInterval = 100 * time.Millisecond

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var (
		req   packages.InstallRequest
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "install NAME",
		Short: "Install a package",
		Long: `Install a package from the configured repositories.

The newest version compatible with this host is selected unless --version is
given. Press Ctrl-C to cancel; partial downloads are removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return runInstall(cmd, req, quiet)
		},
	}

	cmd.Flags().StringVar(&req.AssemblyGUID, "guid", "", "Select the package by assembly guid")
	cmd.Flags().StringVar(&req.Version, "version", "", "Install this exact version")
	cmd.Flags().StringVar(&req.RepositoryURL, "repository", "", "Only consider packages from this repository URL")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not render a progress bar")

	return cmd
}

func runInstall(cmd *cobra.Command, req packages.InstallRequest, quiet bool) error {
	svc, _, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var task model.InstallationTask
	if quiet {
		task, err = svc.InstallAndWait(ctx, req)
		if err != nil && task.ID == "" {
			return err
		}
	} else {
		id, err := svc.Install(ctx, req)
		if err != nil {
			return err
		}
		task, err = trackInstall(ctx, cmd, svc, id)
		if err != nil {
			return err
		}
	}

	return reportInstall(cmd, task)
}

// trackInstall renders task progress until the task is terminal. Cancelling ctx
// cancels the task and keeps waiting for its cleanup.
func trackInstall(ctx context.Context, cmd *cobra.Command, svc *packages.Service, id string) (model.InstallationTask, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionSetDescription(string(model.StatusPending)),
		progressbar.OptionShowCount(),
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			svc.Cancel(id)
			done = nil
		case <-ticker.C:
		}

		task, err := svc.Status(id)
		if err != nil {
			return model.InstallationTask{}, err
		}
		bar.Describe(fmt.Sprintf("%-11s %s", task.Status, task.PackageName))
		_ = bar.Set(int(task.Progress))

		if task.Status.IsTerminal() {
			if task.Status == model.StatusCompleted {
				_ = bar.Finish()
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
			return task, nil
		}
	}
}

func reportInstall(cmd *cobra.Command, task model.InstallationTask) error {
	switch task.Status {
	case model.StatusCompleted:
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s to %s\n", task.PackageName, task.Version, task.InstallPath)
		return nil
	case model.StatusCancelled:
		return fmt.Errorf("installation of %s cancelled", task.PackageName)
	default:
		return fmt.Errorf("installation of %s failed after %d attempt(s): %s", task.PackageName, task.Attempts, task.Error)
	}
}
