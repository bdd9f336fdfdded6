package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/kube"
	"github.com/cnrancher/autorancher/pkg/poll"
	"github.com/pkg/errors"
)

// Restore reapplies captured resource files from inDir to the host cluster
// and, when an operator job is present, submits it to the nested cluster and
// waits for Rancher to come back. Applying an already present resource is a
// no-op, so restoring twice is safe.
func (c *Coordinator) Restore(ctx context.Context, inDir string, job *OperatorJob) (*Report, error) {
	ready, err := c.Host.NodesReady(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[restore] calling preflight error: checking cluster nodes")
	}
	if !ready {
		return nil, errors.New("[restore] calling preflight error: cluster has no ready node")
	}

	report := &Report{}
	if inDir != "" {
		if err := c.reapplyFiles(ctx, inDir, report); err != nil {
			return nil, err
		}
	}
	if job != nil {
		if err := c.runOperatorRestore(ctx, job, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (c *Coordinator) reapplyFiles(ctx context.Context, inDir string, report *Report) error {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return errors.Wrapf(err, "[restore] failed to read backup directory %s", inDir)
	}
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		c.Logger.Warnf("[restore] no resource files found in %s", inDir)
	}

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(inDir, name))
		if err != nil {
			report.add(name, StatusWarning, err.Error())
			continue
		}
		if err := c.Host.Apply(ctx, string(content)); err != nil {
			c.Logger.Warnf("[restore] failed to apply %s: %v", name, err)
			report.add(name, StatusWarning, err.Error())
			continue
		}
		c.Logger.Infof("[restore] applied %s", name)
		report.add(name, StatusApplied, "")
	}
	return nil
}

func (c *Coordinator) runOperatorRestore(ctx context.Context, job *OperatorJob, report *Report) error {
	if err := c.restorePreflight(ctx, job); err != nil {
		return err
	}

	manifest, err := restoreManifest(job)
	if err != nil {
		return err
	}
	if err := c.Nested.Apply(ctx, manifest); err != nil {
		return errors.Wrapf(err, "[restore] failed to submit operator restore %s", job.Name)
	}
	c.Logger.Infof("[restore] waiting for operator restore %s to complete", job.Name)

	ref := restoreRef(job.Name)
	spec := c.pollSpec(fmt.Sprintf("operator restore %s", job.Name))
	result := poll.WaitFor(ctx, spec, func(ctx context.Context) (string, error) {
		return c.jobState(ctx, ref)
	})
	if result.Outcome != poll.Success {
		return result.Err(spec)
	}
	report.add("operator restore", StatusApplied, job.Filename)

	// The operator replaces Rancher's state underneath it, wait for the
	// deployment to settle before declaring success.
	rolloutSpec := c.pollSpec("rancher deployment rollout")
	rolloutResult := poll.WaitFor(ctx, rolloutSpec, func(ctx context.Context) (string, error) {
		return c.Nested.DeploymentState(ctx, common.CattleNamespace, "rancher")
	})
	if rolloutResult.Outcome != poll.Success {
		return rolloutResult.Err(rolloutSpec)
	}
	report.add("rancher rollout", StatusApplied, "")
	return nil
}

// restorePreflight hard-fails when the operator or its storage credentials
// are missing, a restore submitted without them would sit pending forever.
func (c *Coordinator) restorePreflight(ctx context.Context, job *OperatorJob) error {
	found, err := c.Nested.Exists(ctx, kube.ResourceRef{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Namespace:  common.BackupNamespace,
		Name:       "rancher-backup",
	})
	if err != nil {
		return errors.Wrap(err, "[restore] calling preflight error: checking backup operator")
	}
	if !found {
		return errors.New("[restore] calling preflight error: backup operator is not installed in the target cluster")
	}
	if job.CredentialSecret == "" {
		return nil
	}
	found, err = c.Nested.Exists(ctx, kube.ResourceRef{
		APIVersion: "v1",
		Kind:       "Secret",
		Namespace:  common.BackupNamespace,
		Name:       job.CredentialSecret,
	})
	if err != nil {
		return errors.Wrap(err, "[restore] calling preflight error: checking storage credential secret")
	}
	if !found {
		return errors.Errorf("[restore] calling preflight error: storage credential secret %s/%s not found",
			common.BackupNamespace, job.CredentialSecret)
	}
	return nil
}

func restoreRef(name string) kube.ResourceRef {
	return kube.ResourceRef{
		APIVersion: "resources.cattle.io/v1",
		Kind:       "Restore",
		Name:       name,
	}
}
