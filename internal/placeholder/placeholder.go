// Package placeholder expands the tokens instructors put into DSL commands
// and into the container launch template.
package placeholder

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/programme-lv/disttester/internal/failures"
)

type Kind int

const (
	HostIP Kind = iota
	TempDir
	Submissions
	Name
	Ports
	Port
	HostPort
	Username
	PeerHostPorts
)

var kindNames = map[Kind]string{
	HostIP:        "HOST_IP",
	TempDir:       "TEMP_DIR",
	Submissions:   "SUBMISSIONS",
	Name:          "NAME",
	Ports:         "PORTS",
	Port:          "PORT_n",
	HostPort:      "H_PORT_n",
	Username:      "USERNAME",
	PeerHostPorts: "PEER_HP[k]",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("placeholder(%d)", int(k))
}

var (
	// CommandKinds may appear in ECMD, ICMD and TESTCMD text.
	CommandKinds = []Kind{HostIP, TempDir, Port, HostPort, Username, PeerHostPorts}
	// LaunchKinds may appear in the container launch template.
	LaunchKinds = []Kind{Name, Submissions, Ports}
)

// H_PORT_ must come before PORT_ so the longer token wins.
var tokenRe = regexp.MustCompile(
	`H_PORT_(\d+)|PORT_(\d+)|PEER_HP(\[[^\]\s]*\])?|HOST_IP|TEMP_DIR|SUBMISSIONS|USERNAME|PORTS|NAME`)

// Endpoint is a container other commands can address through PEER_HP.
type Endpoint struct {
	Name  string
	Ports []int
}

type Values struct {
	HostIP      string
	TempDir     string
	Name        string
	Submissions string
	Username    string

	// Target holds the ports of the container the command runs in.
	Target    []int
	HasTarget bool
	// Controller holds the controller container's ports.
	Controller    []int
	HasController bool
	// Peers lists the containers other than the target, in replica order.
	Peers []Endpoint
}

// Expand substitutes every placeholder of the allowed kinds in text.
// Tokens of other kinds are left untouched, and so are tokens that are part
// of a longer word such as IMPORT_0 or HOSTNAME. A reference that cannot be
// resolved is a *failures.ConfigError.
func Expand(text string, allowed []Kind, v Values) (string, error) {
	var sb strings.Builder
	pos := 0
	for pos < len(text) {
		loc := tokenRe.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !standalone(text, start, end) {
			// tokens are ASCII, so start+1 is a rune boundary
			sb.WriteString(text[pos : start+1])
			pos = start + 1
			continue
		}
		sb.WriteString(text[pos:start])
		pos = end

		tok := text[start:end]
		kind, arg, err := classify(tok)
		if err != nil {
			return "", err
		}
		if !slices.Contains(allowed, kind) {
			sb.WriteString(tok)
			continue
		}
		res, err := resolve(kind, arg, v)
		if err != nil {
			return "", err
		}
		sb.WriteString(res)
	}
	sb.WriteString(text[pos:])
	return sb.String(), nil
}

// standalone reports whether text[start:end] is not glued to a word. An
// underscore may follow a token, as in TEMP_DIR_old.
func standalone(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && text[end] != '_' && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || '0' <= b && b <= '9' || 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}

func classify(tok string) (Kind, int, error) {
	switch {
	case strings.HasPrefix(tok, "H_PORT_"):
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "H_PORT_"))
		return HostPort, n, err
	case strings.HasPrefix(tok, "PORT_"):
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "PORT_"))
		return Port, n, err
	case strings.HasPrefix(tok, "PEER_HP"):
		arg := strings.TrimPrefix(tok, "PEER_HP")
		if len(arg) < 3 || arg[0] != '[' || arg[len(arg)-1] != ']' {
			return PeerHostPorts, 0, failures.Configf("malformed %s, expected PEER_HP[k]", tok)
		}
		n, err := strconv.Atoi(arg[1 : len(arg)-1])
		if err != nil {
			return PeerHostPorts, 0, failures.Configf("malformed %s, expected PEER_HP[k]", tok)
		}
		return PeerHostPorts, n, nil
	case tok == "HOST_IP":
		return HostIP, 0, nil
	case tok == "TEMP_DIR":
		return TempDir, 0, nil
	case tok == "SUBMISSIONS":
		return Submissions, 0, nil
	case tok == "USERNAME":
		return Username, 0, nil
	case tok == "PORTS":
		return Ports, 0, nil
	case tok == "NAME":
		return Name, 0, nil
	}
	return 0, 0, failures.Configf("unknown placeholder %s", tok)
}

func resolve(kind Kind, arg int, v Values) (string, error) {
	switch kind {
	case HostIP:
		return v.HostIP, nil
	case TempDir:
		return v.TempDir, nil
	case Submissions:
		return v.Submissions, nil
	case Name:
		return v.Name, nil
	case Username:
		return v.Username, nil
	case Ports:
		return PortArgs(v.Target), nil
	case Port:
		if !v.HasTarget {
			return "", failures.Configf("PORT_%d used outside of a container", arg)
		}
		if arg >= len(v.Target) {
			return "", failures.Configf("PORT_%d used but only %d ports are allocated, raise PORTS", arg, len(v.Target))
		}
		return strconv.Itoa(v.Target[arg]), nil
	case HostPort:
		if !v.HasController {
			return "", failures.Configf("H_PORT_%d used without a controller container", arg)
		}
		if arg >= len(v.Controller) {
			return "", failures.Configf("H_PORT_%d used but the controller has only %d ports, raise PORTS", arg, len(v.Controller))
		}
		return strconv.Itoa(v.Controller[arg]), nil
	case PeerHostPorts:
		var addrs []string
		for _, peer := range v.Peers[:min(arg, len(v.Peers))] {
			if len(peer.Ports) == 0 {
				return "", failures.Configf("PEER_HP needs a port on %s, raise PORTS", peer.Name)
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", v.HostIP, peer.Ports[0]))
		}
		return strings.Join(addrs, ","), nil
	}
	return "", failures.Configf("unsupported placeholder %s", kind)
}

// PortArgs renders the publish flags for the launch template's PORTS.
func PortArgs(ports []int) string {
	var sb strings.Builder
	for _, p := range ports {
		fmt.Fprintf(&sb, "-p %d:%d ", p, p)
	}
	return sb.String()
}

const maxUsernameLen = 10

// SanitizeUsername turns a display name into a short shell-safe login.
// A non-negative idx is appended as "_idx".
func SanitizeUsername(display string, idx int) string {
	var sb strings.Builder
	n := 0
	for _, r := range strings.ToLower(strings.TrimSpace(display)) {
		if n == maxUsernameLen {
			break
		}
		switch {
		case unicode.IsSpace(r):
			sb.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'):
			sb.WriteRune(r)
		default:
			continue
		}
		n++
	}
	if idx >= 0 {
		fmt.Fprintf(&sb, "_%d", idx)
	}
	return sb.String()
}
