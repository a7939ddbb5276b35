package dsproc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PortLister reports the set of TCP ports a process currently has bound in
// LISTEN state. It is an interface so tests can fake it; the default
// implementation (linuxProcPortLister) reads /proc/<pid>/net/tcp{,6}.
type PortLister interface {
	ListeningPorts(pid int) (map[int]struct{}, error)
}

// linuxProcPortLister implements PortLister by parsing /proc/<pid>/net/tcp
// and /proc/<pid>/net/tcp6, the same source `netstat`/`ss` read from. Entries
// are matched to pid by virtue of reading the per-process net namespace
// view under /proc/<pid>, not by cross-referencing inodes against
// /proc/<pid>/fd (which would also work, but this is simpler and accurate
// for the common case of the DS not sharing a net namespace).
type linuxProcPortLister struct{}

// NewLinuxPortLister returns the default, Linux-specific PortLister.
func NewLinuxPortLister() PortLister {
	return linuxProcPortLister{}
}

const tcpListenState = "0A"

func (linuxProcPortLister) ListeningPorts(pid int) (map[int]struct{}, error) {
	ports := map[int]struct{}{}

	for _, name := range []string{"tcp", "tcp6"} {
		path := fmt.Sprintf("/proc/%d/net/%s", pid, name)
		if err := scanProcNetTCP(path, ports); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return ports, nil
}

func scanProcNetTCP(path string, out map[int]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header line
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		// fields[1] is "local_address:port" in hex, fields[3] is hex state.
		if fields[3] != tcpListenState {
			continue
		}
		localAddr := fields[1]
		idx := strings.LastIndexByte(localAddr, ':')
		if idx < 0 {
			continue
		}
		port, err := strconv.ParseInt(localAddr[idx+1:], 16, 32)
		if err != nil {
			continue
		}
		out[int(port)] = struct{}{}
	}
	return scanner.Err()
}
