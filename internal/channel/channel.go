package channel

import "github.com/andygmpub/gpsbridge/internal/bundle"

// Endpoint names the remote consumer application port that bundles are
// delivered to.
type Endpoint struct {
	AppID string `yaml:"app_id" json:"appId"`
	Port  string `yaml:"port" json:"port"`
}

// Name returns the endpoint in its canonical "<appid>:<port>" form.
func (e Endpoint) Name() string {
	return e.AppID + ":" + e.Port
}

// Channel is the inter-process transport for key-value bundles.
//
// CheckRemote probes reachability of the remote endpoint; the bridge calls
// it once at startup and caches the answer. Send is best-effort: delivery
// failures are reported but the bridge never retries them.
type Channel interface {
	// Name returns a human-readable description of the transport.
	Name() string
	// CheckRemote probes whether the remote endpoint is reachable.
	CheckRemote() (bool, error)
	// Send delivers one bundle to the remote endpoint.
	Send(b bundle.Bundle) error
	// Close releases the transport.
	Close() error
}
