package dbus

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Scope selects which bus to connect to.
type Scope int

const (
	// SessionBus is the per-login bus; its address comes from the
	// environment (the starter address takes precedence, matching
	// the daemon activation convention).
	SessionBus Scope = iota
	// SystemBus is the machine bus, with the conventional default
	// socket path when the environment does not override it.
	SystemBus
)

const defaultSystemSocket = "unix:path=/var/run/dbus/system_bus_socket"

// busAddress resolves the transport address for a scope.
func busAddress(scope Scope) (string, error) {
	switch scope {
	case SessionBus:
		if addr := os.Getenv("DBUS_STARTER_ADDRESS"); addr != "" {
			return addr, nil
		}
		if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
			return addr, nil
		}
		return "", fmt.Errorf("%w: session scope", ErrNoAddress)
	case SystemBus:
		if addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); addr != "" {
			return addr, nil
		}
		return defaultSystemSocket, nil
	default:
		return "", fmt.Errorf("dbus: unknown bus scope %d", scope)
	}
}

// parseUnixAddress extracts the socket path from a bus address. Only
// the unix transport is supported; abstract sockets get the leading
// nul Linux expects.
func parseUnixAddress(address string) (string, error) {
	// Addresses may list alternatives separated by ';'. First
	// usable one wins.
	for _, alt := range strings.Split(address, ";") {
		transport, params, ok := strings.Cut(alt, ":")
		if !ok || transport != "unix" {
			continue
		}
		for _, kv := range strings.Split(params, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch k {
			case "path":
				return v, nil
			case "abstract":
				return "\x00" + v, nil
			}
		}
	}
	return "", fmt.Errorf("dbus: no usable unix transport in address %q", address)
}

// dialUnix opens a stream socket to the bus address.
func dialUnix(address string) (int, error) {
	path, err := parseUnixAddress(address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("dbus: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("dbus: connect %s: %w", address, err)
	}
	return fd, nil
}

// authExternal runs the EXTERNAL SASL exchange on a fresh, still
// blocking socket: credentials byte, AUTH, OK, BEGIN.
func authExternal(fd int) error {
	uid := hex.EncodeToString([]byte(strconv.Itoa(os.Getuid())))
	greeting := "\x00AUTH EXTERNAL " + uid + "\r\n"
	if err := writeFull(fd, []byte(greeting)); err != nil {
		return fmt.Errorf("dbus: auth write: %w", err)
	}
	line, err := readLine(fd)
	if err != nil {
		return fmt.Errorf("dbus: auth read: %w", err)
	}
	if !strings.HasPrefix(line, "OK ") && line != "OK" {
		return fmt.Errorf("dbus: authentication refused: %q", line)
	}
	if err := writeFull(fd, []byte("BEGIN\r\n")); err != nil {
		return fmt.Errorf("dbus: auth begin: %w", err)
	}
	return nil
}

func writeFull(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// readLine reads a CRLF-terminated auth line one byte at a time; the
// exchange is tiny and happens once per connection.
func readLine(fd int) (string, error) {
	var line []byte
	var b [1]byte
	for {
		n, err := unix.Read(fd, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", fmt.Errorf("connection closed during auth")
		}
		line = append(line, b[0])
		if len(line) >= 2 && line[len(line)-2] == '\r' && line[len(line)-1] == '\n' {
			return string(line[:len(line)-2]), nil
		}
		if len(line) > 4096 {
			return "", fmt.Errorf("auth line too long")
		}
	}
}
