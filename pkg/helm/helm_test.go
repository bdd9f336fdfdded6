package helm

import (
	"context"
	"os"
	"strings"
	"testing"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func fakeRunner(result execute.ExecResult) (*Runner, *[]execute.ExecTask) {
	tasks := &[]execute.ExecTask{}
	runner := NewRunner("/tmp/kubeconfig", logrus.New())
	runner.exec = func(_ context.Context, task execute.ExecTask) (execute.ExecResult, error) {
		*tasks = append(*tasks, task)
		return result, nil
	}
	return runner, tasks
}

func TestRepoAddWithAuthFlags(t *testing.T) {
	runner, tasks := fakeRunner(execute.ExecResult{})
	err := runner.RepoAdd(context.Background(), "rancher-latest",
		"https://releases.rancher.com/server-charts/latest",
		[]string{"--username", "u", "--password", "p", "--ca-file", "/tmp/ca.pem"})
	assert.Nil(t, err)
	assert.Len(t, *tasks, 1)
	task := (*tasks)[0]
	assert.Equal(t, "helm", task.Command)
	assert.Equal(t, []string{
		"repo", "add", "rancher-latest", "https://releases.rancher.com/server-charts/latest",
		"--force-update", "--username", "u", "--password", "p", "--ca-file", "/tmp/ca.pem",
	}, task.Args)
	assert.Contains(t, task.Env, "KUBECONFIG=/tmp/kubeconfig")
}

func TestUpgradeInstallArgs(t *testing.T) {
	runner, tasks := fakeRunner(execute.ExecResult{})
	err := runner.UpgradeInstall(context.Background(), "rancher", "rancher-latest/rancher",
		"2.8.2", "cattle-system", "", []string{"replicas=1"})
	assert.Nil(t, err)
	task := (*tasks)[0]
	assert.Equal(t, []string{
		"upgrade", "--install", "rancher", "rancher-latest/rancher",
		"--namespace", "cattle-system", "--create-namespace",
		"--version", "2.8.2", "--set", "replicas=1",
	}, task.Args)
}

func TestUpgradeInstallWritesValuesFile(t *testing.T) {
	var seenValues string
	runner, _ := fakeRunner(execute.ExecResult{})
	inner := runner.exec
	runner.exec = func(ctx context.Context, task execute.ExecTask) (execute.ExecResult, error) {
		for i, arg := range task.Args {
			if arg == "-f" {
				content, err := os.ReadFile(task.Args[i+1])
				assert.Nil(t, err)
				seenValues = string(content)
			}
		}
		return inner(ctx, task)
	}
	err := runner.UpgradeInstall(context.Background(), "rancher", "rancher-latest/rancher",
		"", "cattle-system", "hostname: rancher.example.com\n", nil)
	assert.Nil(t, err)
	assert.Equal(t, "hostname: rancher.example.com\n", seenValues)
}

func TestRunNonZeroExit(t *testing.T) {
	runner, _ := fakeRunner(execute.ExecResult{ExitCode: 1, Stderr: "Error: chart not found\n"})
	err := runner.RepoUpdate(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chart not found")
}

func TestDeployedChartVersion(t *testing.T) {
	runner, tasks := fakeRunner(execute.ExecResult{
		Stdout: `[{"name":"rancher","namespace":"cattle-system","chart":"rancher-2.8.2","status":"deployed"}]`,
	})
	version, err := runner.DeployedChartVersion(context.Background(), "rancher", "cattle-system")
	assert.Nil(t, err)
	assert.Equal(t, "2.8.2", version)
	assert.True(t, strings.Contains(strings.Join((*tasks)[0].Args, " "), "--filter ^rancher$"))
}

func TestDeployedChartVersionAbsent(t *testing.T) {
	runner, _ := fakeRunner(execute.ExecResult{Stdout: `[]`})
	version, err := runner.DeployedChartVersion(context.Background(), "rancher", "cattle-system")
	assert.Nil(t, err)
	assert.Equal(t, "", version)
}

func TestDeployedChartVersionPrerelease(t *testing.T) {
	runner, _ := fakeRunner(execute.ExecResult{
		Stdout: `[{"name":"rancher","namespace":"cattle-system","chart":"rancher-2.8.2-rc1","status":"deployed"}]`,
	})
	version, err := runner.DeployedChartVersion(context.Background(), "rancher", "cattle-system")
	assert.Nil(t, err)
	assert.Equal(t, "2.8.2-rc1", version)
}

func TestChartVersion(t *testing.T) {
	assert.Equal(t, "v1.13.3", chartVersion("cert-manager-v1.13.3", "cert-manager"))
	assert.Equal(t, "2.8.2", chartVersion("rancher-2.8.2", "rancher"))
	assert.Equal(t, "2.8.2-rc1", chartVersion("rancher-2.8.2-rc1", "rancher"))
	assert.Equal(t, "", chartVersion("standalone", "rancher"))
}
