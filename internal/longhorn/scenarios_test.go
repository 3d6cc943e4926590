package longhorn

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		cluster *fakeCluster
		fetcher *fakeFetcher
		o       *Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		fetcher = &fakeFetcher{manifest: testManifest}
	})

	orchestrator := func(confirm Confirmer) *Orchestrator {
		return New(cluster, fetcher, Options{
			Namespace:  testNamespace,
			BackupRoot: GinkgoT().TempDir(),
			Wait:       WaitOptions{Timeout: fastWait, PollInterval: fastInterval},
			Confirm:    confirm,
		})
	}

	Context("with a manager at v1.8.2 and a CSI plugin at v1.7.3", func() {
		BeforeEach(func() {
			tb := GinkgoTB()
			cluster = newFakeCluster(
				settingObj("current-longhorn-version", "v1.8.2"),
				daemonSetObj(tb, "longhorn-manager", managerContainer("v1.8.2")),
				daemonSetObj(tb, "longhorn-csi-plugin", csiContainers("v1.7.3")...),
				deploymentObj(tb, "longhorn-driver-deployer", nil, "longhornio/longhorn-manager:v1.8.0"),
				podObj(tb, testNamespace, "longhorn-manager-a", "longhorn-manager", true),
				podObj(tb, testNamespace, "longhorn-csi-plugin-a", "longhorn-csi-plugin", true),
			)
			o = orchestrator(AlwaysConfirm)
		})

		It("reports exactly one manager vs csi mismatch", func() {
			report, err := o.Inspect(ctx)
			Expect(err).NotTo(HaveOccurred())

			conflicts := DetectConflicts(report)
			Expect(conflicts.HasConflict).To(BeTrue())
			Expect(conflicts.Mismatches).To(ConsistOf(Mismatch{
				ComponentA: ComponentManager,
				ComponentB: ComponentCSI,
				VersionA:   "v1.8.2",
				VersionB:   "v1.7.3",
			}))
		})

		It("fixes conflicts by upgrading to the numeric maximum", func() {
			res, err := o.FixConflicts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TargetVersion).To(Equal("v1.8.2"))
			Expect(fetcher.versions).To(Equal([]string{"v1.8.2"}))
		})
	})

	Context("with a healthy installation", func() {
		BeforeEach(func() {
			cluster = healthyCluster(GinkgoTB(), "v1.8.2")
		})

		It("never applies before the backup bundle is on disk", func() {
			o = orchestrator(AlwaysConfirm)
			var bundleDirs []string
			cluster.onApply = func([]byte) error {
				entries, err := os.ReadDir(o.opts.BackupRoot)
				Expect(err).NotTo(HaveOccurred())
				for _, e := range entries {
					bundleDirs = append(bundleDirs, e.Name())
				}
				return nil
			}

			By("upgrading to v1.9.0")
			res, err := o.Upgrade(ctx, UpgradeRequest{TargetVersion: "v1.9.0"})
			Expect(err).NotTo(HaveOccurred())

			By("verifying the bundle existed when the manifest was applied")
			Expect(bundleDirs).To(HaveLen(1))
			Expect(res.Bundle.Path).To(HaveSuffix(bundleDirs[0]))
		})

		It("round-trips workloads through backup and rollback", func() {
			o = orchestrator(AlwaysConfirm)

			bundle, err := o.Backup(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			exported, err := os.ReadFile(bundle.ArtifactPath(ArtifactWorkloads))
			Expect(err).NotTo(HaveOccurred())

			_, err = o.Rollback(ctx, bundle)
			Expect(err).NotTo(HaveOccurred())
			Expect(cluster.applied).NotTo(BeEmpty())
			Expect(cluster.applied[0]).To(Equal(exported))
		})

		It("treats a declined confirmation as cancelled", func() {
			o = orchestrator(NeverConfirm)

			_, err := o.Upgrade(ctx, UpgradeRequest{TargetVersion: "v1.9.0"})
			Expect(err).To(MatchError(ErrUserCancelled))
			Expect(cluster.applyCount()).To(BeZero())
		})
	})

	Context("when pods never become ready", func() {
		BeforeEach(func() {
			cluster = newFakeCluster(podObj(GinkgoTB(), testNamespace, "longhorn-manager-a", "longhorn-manager", false))
			o = orchestrator(AlwaysConfirm)
		})

		It("times out at the deadline rather than the poll interval", func() {
			start := time.Now()
			_, _, err := o.WaitForReady(ctx, WaitOptions{Timeout: time.Second, PollInterval: 10 * time.Second})
			Expect(err).To(MatchError(ErrTimeout))
			Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
		})
	})
})
