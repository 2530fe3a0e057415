package receipt

import (
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RateLimiter", func() {
	var (
		limiter *RateLimiter
		now     time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
		limiter = NewRateLimiter(0.001, 2)
		limiter.now = func() time.Time { return now }
	})

	It("limits each client independently", func() {
		a := httptest.NewRequest("GET", "/api/tickets", nil)
		a.RemoteAddr = "10.0.0.1:5000"
		b := httptest.NewRequest("GET", "/api/tickets", nil)
		b.RemoteAddr = "10.0.0.2:5000"

		Expect(limiter.Allow(a)).To(BeTrue())
		Expect(limiter.Allow(a)).To(BeTrue())
		Expect(limiter.Allow(a)).To(BeFalse())
		Expect(limiter.Allow(b)).To(BeTrue())
	})

	It("keys on the first forwarded address", func() {
		r := httptest.NewRequest("GET", "/api/tickets", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		Expect(clientAddr(r)).To(Equal("203.0.113.7"))
	})

	It("drops idle clients", func() {
		r := httptest.NewRequest("GET", "/api/tickets", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		limiter.Allow(r)
		Expect(limiter.clients).To(HaveKey("10.0.0.1"))

		now = now.Add(2 * time.Minute)
		other := httptest.NewRequest("GET", "/api/tickets", nil)
		other.RemoteAddr = "10.0.0.9:5000"
		limiter.Allow(other)
		Expect(limiter.clients).NotTo(HaveKey("10.0.0.1"))
		Expect(limiter.clients).To(HaveKey("10.0.0.9"))
	})
})
