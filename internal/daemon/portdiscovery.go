package daemon

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saleeh93/buck-cutom/internal/retry"
)

// serverStartPattern matches the single startup line on which the nailgun
// server announces its ephemeral port; only the numeric capture is used.
var serverStartPattern = regexp.MustCompile(`^NGServer.* port (\d+)\.$`)

// AwaitPort scans the daemon's combined startup output for the port
// announcement. The wait is bounded by the policy: a hung daemon must not
// hang its supervisor. A stream that ends before announcing, or exhausting
// the attempts, reports an error the caller treats as "no usable daemon",
// not a crash.
func AwaitPort(r io.Reader, policy retry.Policy) (int, error) {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		close(lines)
	}()

	for i := 0; i < policy.MaxAttempts; i++ {
		select {
		case line, ok := <-lines:
			if !ok {
				return 0, fmt.Errorf("server output ended before a port was announced")
			}
			if m := serverStartPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				port, err := strconv.Atoi(m[1])
				if err != nil {
					return 0, fmt.Errorf("unparseable port %q in server output", m[1])
				}
				return port, nil
			}
		default:
			time.Sleep(policy.Interval)
		}
	}
	return 0, fmt.Errorf("server did not announce a port within %v", policy.Bound())
}
