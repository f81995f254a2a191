package syncx_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/courier/internal/syncx"
)

var _ = Describe("SessionLock", func() {
	var (
		ctx  context.Context
		lock *syncx.SessionLock
	)

	BeforeEach(func() {
		ctx = context.Background()
		lock = syncx.NewSessionLock()
	})

	It("grants shared holds concurrently", func() {
		Expect(lock.RLock(ctx)).To(Succeed())
		Expect(lock.RLock(ctx)).To(Succeed())

		lock.RUnlock()
		lock.RUnlock()
	})

	It("makes the writer wait for every shared hold", func() {
		Expect(lock.RLock(ctx)).To(Succeed())
		Expect(lock.RLock(ctx)).To(Succeed())

		acquired := make(chan struct{})

		go func() {
			defer GinkgoRecover()
			Expect(lock.Lock(ctx)).To(Succeed())
			close(acquired)
		}()

		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())

		lock.RUnlock()
		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())

		lock.RUnlock()
		Eventually(acquired).Should(BeClosed())

		lock.Unlock()
	})

	It("excludes readers while a writer holds the lock", func() {
		Expect(lock.Lock(ctx)).To(Succeed())

		acquired := make(chan struct{})

		go func() {
			defer GinkgoRecover()
			Expect(lock.RLock(ctx)).To(Succeed())
			close(acquired)
		}()

		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())

		lock.Unlock()
		Eventually(acquired).Should(BeClosed())

		lock.RUnlock()
	})

	It("abandons a wait when the context is done", func() {
		Expect(lock.RLock(ctx)).To(Succeed())

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		Expect(lock.Lock(short)).To(MatchError(context.DeadlineExceeded))

		lock.RUnlock()

		// The failed wait must not have consumed capacity.
		Expect(lock.Lock(ctx)).To(Succeed())
		lock.Unlock()
	})

	It("can be released from a different goroutine than took it", func() {
		Expect(lock.Lock(ctx)).To(Succeed())

		released := make(chan struct{})

		go func() {
			lock.Unlock()
			close(released)
		}()

		Eventually(released).Should(BeClosed())

		Expect(lock.RLock(ctx)).To(Succeed())
		lock.RUnlock()
	})
})
