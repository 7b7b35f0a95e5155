package health

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heymind/reproxy/internal/router"
)

// RouterCheck reports the size of the active rule set. An empty rule
// set is healthy: the proxy runs and answers every request with 404.
func RouterCheck(r *router.Router) CheckFunc {
	return func() Check {
		count := r.Snapshot().Len()
		return Check{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d rules active", count),
		}
	}
}

// HTTPCheck probes an HTTP endpoint. Any 2xx or 3xx response is
// healthy.
func HTTPCheck(url string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}

	return func() Check {
		resp, err := client.Get(url)
		if err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: err.Error(),
			}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}

		return Check{Status: StatusHealthy}
	}
}

// TCPCheck probes a TCP address.
func TCPCheck(addr string, timeout time.Duration) CheckFunc {
	return func() Check {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: err.Error(),
			}
		}
		_ = conn.Close()

		return Check{Status: StatusHealthy}
	}
}
