// Package helm is the command-run adapter around the helm binary. Installs
// go through `helm upgrade --install`, which is idempotent for an identical
// (chart, version) pair, so deployment steps can safely re-run it.
package helm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const helmCommand = "helm"

type Runner struct {
	// Kubeconfig selects the target cluster for every invocation.
	Kubeconfig string
	Logger     *logrus.Logger

	// exec is swapped out by tests.
	exec func(ctx context.Context, task execute.ExecTask) (execute.ExecResult, error)
}

func NewRunner(kubeconfig string, logger *logrus.Logger) *Runner {
	return &Runner{
		Kubeconfig: kubeconfig,
		Logger:     logger,
		exec: func(ctx context.Context, task execute.ExecTask) (execute.ExecResult, error) {
			return task.Execute(ctx)
		},
	}
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	r.Logger.Debugf("[helm] running helm %s", strings.Join(args, " "))
	task := execute.ExecTask{
		Command: helmCommand,
		Args:    args,
		Env:     []string{fmt.Sprintf("KUBECONFIG=%s", r.Kubeconfig)},
	}
	result, err := r.exec(ctx, task)
	if err != nil {
		return "", errors.Wrapf(err, "failed to run helm %s", args[0])
	}
	if result.ExitCode != 0 {
		return "", errors.Errorf("helm %s exited with code %d: %s", args[0], result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// RepoAdd registers a chart repository, passing repository auth flags when
// credentials are configured. --force-update keeps re-runs idempotent.
func (r *Runner) RepoAdd(ctx context.Context, name, url string, authFlags []string) error {
	args := append([]string{"repo", "add", name, url, "--force-update"}, authFlags...)
	_, err := r.run(ctx, args...)
	return err
}

// RepoUpdate refreshes the local repository index.
func (r *Runner) RepoUpdate(ctx context.Context) error {
	_, err := r.run(ctx, "repo", "update")
	return err
}

// UpgradeInstall installs or upgrades a release. A non-empty valuesContent
// is written to a temp file and passed with -f; set entries are forwarded
// as --set flags.
func (r *Runner) UpgradeInstall(ctx context.Context, release, chart, version, namespace, valuesContent string, set []string) error {
	args := []string{
		"upgrade", "--install", release, chart,
		"--namespace", namespace, "--create-namespace",
	}
	if version != "" {
		args = append(args, "--version", version)
	}
	if valuesContent != "" {
		valuesFile, err := writeValuesFile(release, valuesContent)
		if err != nil {
			return err
		}
		defer os.Remove(valuesFile)
		args = append(args, "-f", valuesFile)
	}
	for _, value := range set {
		args = append(args, "--set", value)
	}
	_, err := r.run(ctx, args...)
	return err
}

// DeployedChartVersion returns the chart version of a deployed release, or
// an empty string when the release does not exist. Preconditions use it to
// tell "exists and up to date" apart from "exists but needs an upgrade".
func (r *Runner) DeployedChartVersion(ctx context.Context, release, namespace string) (string, error) {
	out, err := r.run(ctx, "list", "--namespace", namespace, "--deployed",
		"--filter", fmt.Sprintf("^%s$", release), "-o", "json")
	if err != nil {
		return "", err
	}
	var releases []struct {
		Name  string `json:"name"`
		Chart string `json:"chart"`
	}
	if err := json.Unmarshal([]byte(out), &releases); err != nil {
		return "", errors.Wrap(err, "failed to parse helm list output")
	}
	for _, rel := range releases {
		if rel.Name == release {
			return chartVersion(rel.Chart, release), nil
		}
	}
	return "", nil
}

// chartVersion extracts the version from a "name-version" chart reference by
// stripping the known release name prefix, so versions containing hyphens
// (e.g. "rancher-2.8.2-rc1" -> "2.8.2-rc1") survive intact.
func chartVersion(chart, release string) string {
	version := strings.TrimPrefix(chart, release+"-")
	if version == chart {
		return ""
	}
	return version
}

func writeValuesFile(release, content string) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("%s-values-*.yaml", release))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
