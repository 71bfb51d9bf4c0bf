package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/glorpus-work/plugd/internal/backoff"
)

func TestBackoff(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Internal/Backoff")
}

var _ = Describe("Backoff", func() {
	var fastPolicy backoff.Policy

	BeforeEach(func() {
		fastPolicy = backoff.Policy{Millis: []int{1, 2, 3}}
	})

	Describe("Duration", func() {
		It("Should return duration within jitter range", func() {
			policy := backoff.Policy{Millis: []int{100}}

			for range 10 {
				d := policy.Duration(0)
				Expect(d).To(BeNumerically(">=", 50*time.Millisecond))
				Expect(d).To(BeNumerically("<=", 150*time.Millisecond))
			}
		})

		It("Should saturate at the last value", func() {
			policy := backoff.Policy{Millis: []int{10, 20, 30}}

			for range 10 {
				d := policy.Duration(7)
				Expect(d).To(BeNumerically(">=", 15*time.Millisecond))
				Expect(d).To(BeNumerically("<=", 45*time.Millisecond))
			}
		})

		It("Should return 0 for zero and empty policies", func() {
			Expect(backoff.Policy{Millis: []int{0, 100}}.Duration(0)).To(Equal(time.Duration(0)))
			Expect(backoff.Policy{}.Duration(3)).To(Equal(time.Duration(0)))
		})

		It("Should spread values across the jitter window", func() {
			policy := backoff.Policy{Millis: []int{1000}}

			minSeen := time.Hour
			maxSeen := time.Duration(0)
			for range 100 {
				d := policy.Duration(0)
				minSeen = min(minSeen, d)
				maxSeen = max(maxSeen, d)
			}

			Expect(minSeen).To(BeNumerically(">=", 500*time.Millisecond))
			Expect(maxSeen).To(BeNumerically("<=", 1500*time.Millisecond))
			Expect(maxSeen - minSeen).To(BeNumerically(">", 100*time.Millisecond))
		})
	})

	Describe("FromMillis", func() {
		It("Should fall back to the install policy", func() {
			Expect(backoff.FromMillis(nil).Millis).To(Equal([]int{500, 1000, 2000}))
		})

		It("Should copy the configured delays", func() {
			ms := []int{5, 10}
			p := backoff.FromMillis(ms)
			ms[0] = 99
			Expect(p.Millis).To(Equal([]int{5, 10}))
		})
	})

	Describe("Sleep", func() {
		It("Should sleep for the specified duration", func() {
			start := time.Now()
			Expect(fastPolicy.Sleep(context.Background(), 5*time.Millisecond)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically(">=", 5*time.Millisecond))
		})

		It("Should be interrupted by context cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(5 * time.Millisecond)
				cancel()
			}()

			start := time.Now()
			err := fastPolicy.Sleep(ctx, time.Second)
			Expect(err).To(Equal(context.Canceled))
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("Should return immediately if context is already canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(fastPolicy.TrySleep(ctx, 0)).To(Equal(context.Canceled))
		})
	})

	Describe("For", func() {
		It("Should pass incrementing try numbers until success", func() {
			var tries []int

			err := fastPolicy.For(context.Background(), func(try int) error {
				tries = append(tries, try)
				if len(tries) >= 4 {
					return nil
				}
				return errors.New("continue")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(tries).To(Equal([]int{1, 2, 3, 4}))
		})

		It("Should stop on a permanent error and return it unwrapped", func() {
			cause := errors.New("fatal")
			attempts := 0

			err := fastPolicy.For(context.Background(), func(try int) error {
				attempts = try
				if try == 2 {
					return backoff.Permanent(cause)
				}
				return errors.New("again")
			})

			Expect(err).To(Equal(cause))
			Expect(attempts).To(Equal(2))
		})

		It("Should treat a permanent nil as success", func() {
			Expect(fastPolicy.For(context.Background(), func(int) error {
				return backoff.Permanent(nil)
			})).To(Succeed())
		})

		It("Should not call back when context is already canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			attempts := 0
			err := fastPolicy.For(ctx, func(int) error {
				attempts++
				return nil
			})

			Expect(err).To(Equal(context.Canceled))
			Expect(attempts).To(Equal(0))
		})
	})
})
