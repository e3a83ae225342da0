package metrics

import "github.com/cactus/go-statsd-client/statsd"

// Dial connects to a statsd sink at addr, prefixing every stat this
// process emits with prefix (conventionally the replica id). Mirrors
// how the teacher's production nodes would construct a real
// statsd.Statter instead of the testing_mocks.go mockStatter.
func Dial(addr, prefix string) (Statter, error) {
	client, err := statsd.NewClient(addr, prefix)
	if err != nil {
		return nil, err
	}
	return client, nil
}
