package config

import (
	"os"
	"sync"
)

// dockerHostGateway is how a container reaches services on the machine
// running Docker.
const dockerHostGateway = "host.docker.internal"

var (
	dockerEnvPath = "/.dockerenv"

	inDockerOnce sync.Once
	inDocker     bool
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container, detected once from the marker file Docker creates.
func IsRunningInDocker() bool {
	inDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvPath)
		inDocker = err == nil
	})
	return inDocker
}

// ResolveHostForDocker rewrites loopback hosts to the Docker host gateway
// when running in a container, so a Postgres or Redis on the developer's
// machine stays reachable from a containerised canvas. Any other host is
// returned unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	}
	return host
}
