package util

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// getOutboundIP retrieves the preferred outbound IP address of this machine.
// UDP dialing sends no packet; it only selects the local address.
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warnf("Failed to close UDP connection: %v", closeErr)
		}
	}()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("could not assert UDP address type")
	}
	return localAddr.IP.String(), nil
}

// sshServerAddress returns the address the SSH client connected to, taken from
// SSH_CONNECTION, or the outbound IP.
func sshServerAddress() string {
	if fields := strings.Fields(os.Getenv("SSH_CONNECTION")); len(fields) >= 3 {
		return fields[2]
	}
	ip, err := getOutboundIP()
	if err != nil {
		log.Debugf("Failed to detect outbound IP: %v", err)
		return "<server-address>"
	}
	return ip
}

// IsSSHSession reports whether the process runs inside an SSH session.
func IsSSHSession() bool {
	return os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_TTY") != ""
}

// PrintSSHTunnelInstructions prints how to forward the callback port when the
// browser runs on another machine than the login command.
func PrintSSHTunnelInstructions(w io.Writer, port int) {
	address := sshServerAddress()
	border := strings.Repeat("=", 80)
	_, _ = fmt.Fprintln(w, "The browser must reach the callback server on this machine.")
	_, _ = fmt.Fprintln(w, border)
	_, _ = fmt.Fprintln(w, "  Run the following command on the machine running your browser:")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  ssh -L %d:127.0.0.1:%d <user>@%s\n", port, port, address)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "  Alternatively paste the final redirect URL when prompted.")
	_, _ = fmt.Fprintln(w, border)
}
