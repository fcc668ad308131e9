package watch_test

import (
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/drvshell/internal/logging"
	"github.com/sabouaram/drvshell/internal/watch"
)

// recorder implements watch.Handler, collecting every event it receives
// behind a mutex so specs can poll it from the test goroutine.
type recorder struct {
	mu       sync.Mutex
	created  []string
	deleted  []string
	selfGone bool
}

func (r *recorder) OnCreated(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, name)
}

func (r *recorder) OnDeleted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, name)
}

func (r *recorder) OnSelfDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfGone = true
}

func (r *recorder) createdNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

func (r *recorder) deletedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

func (r *recorder) wasSelfDeleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfGone
}

func alwaysMatches(string) bool { return true }

var _ = Describe("Watcher", func() {
	var base string
	var log logging.Logger

	BeforeEach(func() {
		base = GinkgoT().TempDir()
		log = logging.New(GinkgoWriter)
	})

	It("reports pre-existing entries during Bootstrap, alphabetically", func() {
		Expect(os.WriteFile(filepath.Join(base, "b.drv.sock"), nil, 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(base, "a.drv.sock"), nil, 0o600)).To(Succeed())

		w, err := watch.New(base, log)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = w.Close() }()

		rec := &recorder{}
		Expect(w.Bootstrap(rec, alwaysMatches)).To(Succeed())

		Expect(rec.createdNames()).To(Equal([]string{"a.drv.sock", "b.drv.sock"}))
	})

	It("reports a create event observed while Run is active", func() {
		w, err := watch.New(base, log)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = w.Close() }()

		rec := &recorder{}
		go w.Run(rec)

		Expect(os.WriteFile(filepath.Join(base, "c.drv.sock"), nil, 0o600)).To(Succeed())

		Eventually(rec.createdNames).Should(ContainElement("c.drv.sock"))
	})

	It("reports a delete event for a removed entry", func() {
		sockPath := filepath.Join(base, "d.drv.sock")
		Expect(os.WriteFile(sockPath, nil, 0o600)).To(Succeed())

		w, err := watch.New(base, log)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = w.Close() }()

		rec := &recorder{}
		go w.Run(rec)

		Expect(os.Remove(sockPath)).To(Succeed())

		Eventually(rec.deletedNames).Should(ContainElement("d.drv.sock"))
	})

	It("reports a self-delete when the base directory itself is removed", func() {
		w, err := watch.New(base, log)
		Expect(err).NotTo(HaveOccurred())

		rec := &recorder{}
		go w.Run(rec)

		Expect(os.RemoveAll(base)).To(Succeed())

		Eventually(rec.wasSelfDeleted).Should(BeTrue())
		Eventually(w.Done()).Should(BeClosed())
	})
})
