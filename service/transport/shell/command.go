package shell

import (
	"path"
	"regexp"
	"strings"

	"github.com/viant/afs/url"
	"github.com/viant/cascade/model/metadata"
)

var (
	unsafeEnvChars  = regexp.MustCompile(`[^A-Z0-9_]`)
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// pidFile returns the remote pid file path of a job
func pidFile(dir, jobID string) string {
	return path.Join(dir, unsafeFileChars.ReplaceAllString(jobID, "_")+".pid")
}

// executeCommand starts command in the background, records its pid and waits
// for it. The session stays open, so the status is restored with a subshell.
func executeCommand(dir, jobID, command string) string {
	pid := quote(pidFile(dir, jobID))
	return "mkdir -p " + quote(dir) + "; (" + command + ") & echo $! > " + pid +
		"; wait $!; status=$?; rm -f " + pid + "; (exit $status)"
}

// killCommand terminates the process recorded in the job's pid file
func killCommand(dir, jobID string) string {
	pid := quote(pidFile(dir, jobID))
	return "test -f " + pid + " && kill $(cat " + pid + ") && rm -f " + pid
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// environment maps job input metadata onto upper case environment variables
func environment(prefix string, md metadata.Metadata) map[string]string {
	if len(md) == 0 {
		return nil
	}
	ret := make(map[string]string, len(md))
	for _, key := range md.Keys() {
		name := unsafeEnvChars.ReplaceAllString(strings.ToUpper(prefix+key), "_")
		ret[name] = strings.Join(md[key], ",")
	}
	return ret
}

// endpoint resolves the ssh host:port of an address and whether it is local
func endpoint(address string) (string, bool) {
	if !strings.Contains(address, "://") {
		address = "ssh://" + address
	}
	host := url.Host(address)
	hostname := host
	if i := strings.LastIndex(host, ":"); i != -1 {
		hostname = host[:i]
	}
	switch hostname {
	case "", "localhost", "127.0.0.1":
		return host, true
	}
	if !strings.Contains(host, ":") {
		host += ":22"
	}
	return host, false
}
