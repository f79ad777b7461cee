package orchestration_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lxc/incus/v6/shared/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/orchestration"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	chtest "github.com/ringzer0/chaldeploy/internal/testing"
	"github.com/ringzer0/chaldeploy/internal/util/labels"
)

type phaseLog struct {
	mu     sync.Mutex
	phases []string
	failed []string
}

func (l *phaseLog) ObservePhase(phase string, _ time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, phase)
	if err != nil {
		l.failed = append(l.failed, phase)
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		lab      *chtest.FakeHypervisor
		runner   *chtest.MockRunner
		observer *chtest.RecordingObserver
		layout   config.Layout
		orch     *orchestration.Orchestrator
	)

	scope := chtest.TestScope

	web := func() *chtest.InstanceBuilder {
		return chtest.NewInstance("web").
			WithStaticIP("").
			WithACL("web-acl").
			WithForward(chtest.TestListenAddress, "80", "8080")
	}

	// runnerSucceeds makes the runner leave an artifacts directory behind,
	// as ansible-runner does.
	runnerSucceeds := func(err error) {
		runner.On("Run", mock.Anything, layout.Dir, config.PlaybookFileName).
			Run(func(args mock.Arguments) {
				Expect(os.MkdirAll(filepath.Join(args.String(1), config.ArtifactsDirName, "1"), 0o755)).To(Succeed())
			}).
			Return(err)
	}

	forwardTargets := func() []string {
		fwd := lab.Forward(scope, chtest.TestNetwork, chtest.TestListenAddress)
		Expect(fwd).NotTo(BeNil())
		var targets []string
		for _, p := range fwd.Ports {
			targets = append(targets, fmt.Sprintf("%s/%s->%s:%s", p.Protocol, p.ListenPort, p.TargetAddress, p.TargetPort))
		}
		return targets
	}

	BeforeEach(func() {
		ctx = context.Background()
		lab = chtest.NewLab()
		runner = &chtest.MockRunner{}
		observer = chtest.NewRecordingObserver()
		layout = config.Layout{Dir: GinkgoT().TempDir()}
		orch = orchestration.New(lab, runner, orchestration.WithObserver(observer), orchestration.WithTimeouts(config.TestTimeouts()))
	})

	Context("a successful run", func() {
		It("provisions every instance and applies networking after the workload", func() {
			runnerSucceeds(nil)
			dep := chtest.NewDeployment(web(), chtest.NewInstance("worker"))

			report, err := orch.Deploy(ctx, layout, dep, orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())

			By("creating both instances")
			Expect(lab.InstanceNames(scope)).To(Equal([]string{"web", "worker"}))
			Expect(report.State.Provisioned).To(HaveLen(2))
			Expect(report.RunID).NotTo(BeEmpty())
			Expect(lab.Instance(scope, "web").Config).To(HaveKeyWithValue(labels.KeyRun, report.RunID))
			Expect(lab.Instance(scope, "web").Config).To(HaveKeyWithValue(labels.KeyDeployment, layout.Name()))
			runner.AssertNumberOfCalls(GinkgoT(), "Run", 1)

			By("pinning the snapshot address and attaching the ACL")
			eth0 := lab.Instance(scope, "web").Devices["eth0"]
			Expect(eth0).To(HaveKeyWithValue("ipv4.address", "10.10.0.2"))
			Expect(eth0).To(HaveKeyWithValue("security.acls", "web-acl"))
			Expect(eth0).NotTo(HaveKey("ipv6.address"))

			By("registering the forward to the pinned address")
			Expect(forwardTargets()).To(Equal([]string{"tcp/80->10.10.0.2:8080"}))

			By("restarting every instance")
			Expect(lab.Calls()).To(ContainElements("restart web", "restart worker"))
			Expect(lab.Instance(scope, "worker").Status).To(Equal("Running"))

			By("discarding the runner artifacts")
			Expect(filepath.Join(layout.Dir, config.ArtifactsDirName)).NotTo(BeADirectory())
		})

		It("runs the phases breadth first", func() {
			runnerSucceeds(nil)
			dep := chtest.NewDeployment(chtest.NewInstance("a"), chtest.NewInstance("b"))

			_, err := orch.Deploy(ctx, layout, dep, orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(lab.Calls()).To(Equal([]string{
				"launch a", "start a",
				"launch b", "start b",
				"restart a", "restart b",
			}))
		})

		It("records phase metrics", func() {
			runnerSucceeds(nil)
			recorder := &phaseLog{}
			orch = orchestration.New(lab, runner, orchestration.WithObserver(observer), orchestration.WithTimeouts(config.TestTimeouts()), orchestration.WithMetrics(recorder))

			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.phases).To(Equal([]string{"scope", "network", "instance", "readiness", "workload", "finalize"}))
			Expect(recorder.failed).To(BeEmpty())
		})

		It("archives artifacts under the deployment name and run id", func() {
			runnerSucceeds(nil)
			archiver := &chtest.MockArchiver{}
			archiver.On("Archive", mock.Anything, filepath.Join(layout.Dir, config.ArtifactsDirName), mock.Anything).Return(1, nil)
			orch = orchestration.New(lab, runner, orchestration.WithObserver(observer), orchestration.WithTimeouts(config.TestTimeouts()), orchestration.WithArchiver(archiver))

			report, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())
			archiver.AssertCalled(GinkgoT(), "Archive", mock.Anything, mock.Anything, layout.Name()+"/"+report.RunID)
		})

		It("waits for a virtual machine to boot", func() {
			runnerSucceeds(nil)
			lab.BootDelay = 2

			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("vm").VirtualMachine()), orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(lab.Calls()).To(ContainElement("exec vm whoami"))
			Expect(observer.Events(provisioning.EventReady)).NotTo(BeEmpty())
		})
	})

	Context("an existing instance", func() {
		BeforeEach(func() {
			lab.SeedInstance(scope, "web", true, map[string]map[string]string{
				"eth0": {"type": "nic", "name": "eth0", "network": chtest.TestNetwork},
			})
		})

		It("fails without force and changes nothing", func() {
			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(web()), orchestration.Options{})
			Expect(err).To(MatchError(provisioning.ErrAlreadyExists))
			Expect(lab.Calls()).To(BeEmpty())
			runner.AssertNotCalled(GinkgoT(), "Run", mock.Anything, mock.Anything, mock.Anything)
		})

		It("is torn down first with force", func() {
			runnerSucceeds(nil)
			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{Force: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lab.Calls()[:5]).To(Equal([]string{"pause web", "stop web", "delete web", "launch web", "start web"}))
		})

		It("is reused in apply mode", func() {
			runnerSucceeds(nil)
			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{Apply: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(lab.Calls()).To(Equal([]string{"restart web"}))
		})
	})

	It("fails apply mode for an instance that was never deployed", func() {
		_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{Apply: true})
		Expect(err).To(MatchError(provisioning.ErrNotFound))
	})

	Context("a failed workload", func() {
		BeforeEach(func() {
			runnerSucceeds(fmt.Errorf("exit status 2: %w", provisioning.ErrWorkloadFailed))
		})

		It("tears down every instance", func() {
			report, err := orch.Deploy(ctx, layout, chtest.NewDeployment(web(), chtest.NewInstance("worker")), orchestration.Options{})
			Expect(err).To(MatchError(provisioning.ErrWorkloadFailed))
			Expect(report.State.WorkloadErr).To(HaveOccurred())
			Expect(lab.InstanceNames(scope)).To(BeEmpty())
			Expect(report.State.Destroyed).To(Equal([]string{"lab:ctf/web", "lab:ctf/worker"}))
			Expect(filepath.Join(layout.Dir, config.ArtifactsDirName)).NotTo(BeADirectory())
			Expect(lab.Calls()).NotTo(ContainElement("restart web"), "finalize never runs")
		})

		It("keeps the instances when asked to", func() {
			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(web(), chtest.NewInstance("worker")), orchestration.Options{KeepOnFailure: true})
			Expect(err).To(MatchError(provisioning.ErrWorkloadFailed))
			Expect(lab.InstanceNames(scope)).To(Equal([]string{"web", "worker"}))
		})
	})

	It("treats a runner that cannot start as a failed workload", func() {
		runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("ansible-runner: executable file not found"))

		_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{})
		Expect(err).To(MatchError(provisioning.ErrWorkloadFailed))
		Expect(lab.InstanceNames(scope)).To(BeEmpty())
	})

	It("tears everything down in test mode", func() {
		runnerSucceeds(nil)
		lab.SeedACL(scope, "shared", "")

		report, err := orch.Deploy(ctx, layout, chtest.NewDeployment(web()), orchestration.Options{Test: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(lab.InstanceNames(scope)).To(BeEmpty())
		Expect(forwardTargets()).To(BeEmpty())
		Expect(lab.ACL(scope, "web-acl")).To(BeNil())
		Expect(lab.ACL(scope, "shared")).NotTo(BeNil(), "unrelated ACLs are untouched")
		Expect(report.State.Destroyed).To(Equal([]string{"lab:ctf/web"}))
	})

	Context("scope resolution", func() {
		It("rejects an unknown remote", func() {
			dep := chtest.NewDeployment(chtest.NewInstance("web").InScope("elsewhere", "ctf"))
			_, err := orch.Deploy(ctx, layout, dep, orchestration.Options{})
			Expect(err).To(MatchError(incus.ErrRemoteNotFound))
		})

		It("rejects an unknown project", func() {
			dep := chtest.NewDeployment(chtest.NewInstance("web").InScope(chtest.TestRemote, "missing"))
			_, err := orch.Deploy(ctx, layout, dep, orchestration.Options{})
			Expect(err).To(MatchError(incus.ErrProjectNotFound))
		})
	})

	It("does not start when the context is already cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := orch.Deploy(cancelled, layout, chtest.NewDeployment(chtest.NewInstance("web")), orchestration.Options{})
		Expect(err).To(MatchError(context.Canceled))
		Expect(lab.Calls()).To(BeEmpty())
	})

	It("fails on a lookup-only network that does not exist", func() {
		dep := chtest.NewDeployment(chtest.NewInstance("web").WithNetwork("ghost", config.ActionLookup, nil))
		_, err := orch.Deploy(ctx, layout, dep, orchestration.Options{})
		Expect(err).To(MatchError(provisioning.ErrNotFound))
		Expect(lab.InstanceNames(scope)).To(BeEmpty())
	})

	Context("purge", func() {
		It("removes the instance, its forwards and its exclusive ACLs", func() {
			runnerSucceeds(nil)
			other := chtest.NewInstance("other").WithForward(chtest.TestListenAddress, "443", "443")
			_, err := orch.Deploy(ctx, layout, chtest.NewDeployment(web(), other), orchestration.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(forwardTargets()).To(HaveLen(2))

			res, err := orch.Purge(ctx, scope, "web")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ForwardsRemoved).To(Equal(1))
			Expect(res.ACLsDeleted).To(Equal([]string{"web-acl"}))
			Expect(lab.InstanceNames(scope)).To(Equal([]string{"other"}))
			Expect(forwardTargets()).To(Equal([]string{"tcp/443->10.10.0.3:443"}))
		})

		It("reports a missing instance", func() {
			_, err := orch.Purge(ctx, scope, "ghost")
			Expect(err).To(MatchError(provisioning.ErrNotFound))
		})

		It("reports an unknown project", func() {
			_, err := orch.Purge(ctx, incus.Scope{Remote: chtest.TestRemote, Project: "missing"}, "web")
			Expect(err).To(MatchError(incus.ErrProjectNotFound))
		})

		It("tears down a stopped instance through its pinned address", func() {
			lab.SeedInstance(scope, "old", false, map[string]map[string]string{
				"eth0": {"type": "nic", "name": "eth0", "network": chtest.TestNetwork, "ipv4.address": "10.10.0.50"},
			})
			lab.SeedForward(scope, chtest.TestNetwork, chtest.TestListenAddress, api.NetworkForwardPort{
				Protocol: "tcp", ListenPort: "22", TargetAddress: "10.10.0.50", TargetPort: "22",
			})

			res, err := orch.Purge(ctx, scope, "old")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ForwardsRemoved).To(Equal(1))
			Expect(forwardTargets()).To(BeEmpty())
		})
	})
})
