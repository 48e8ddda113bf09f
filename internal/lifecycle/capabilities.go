package lifecycle

import "github.com/rsyslog-go/daemon/internal/ports"

// DropCapabilities narrows the process's Linux capability set to the
// operational whitelist (net-bind, setuid/setgid, dac-override, syslog,
// chroot, resource, chown, lease, net-admin, net-raw, block-suspend,
// sys-admin). Intentionally a documented no-op for now: no dependency in
// this module wraps capabilities(7), and issuing raw capset(2) syscalls
// here would be worse than deferring to the service manager
// (systemd's CapabilityBoundingSet=), which is how this daemon is
// deployed. The function exists so the startup path has a single seam.
// TODO: wire kernel.org/pub/linux/libs/security/libcap/cap if in-process
// dropping becomes a requirement.
func DropCapabilities(logger ports.Logger) {
	if logger != nil {
		logger.Debug("capability narrowing delegated to the service manager")
	}
}
