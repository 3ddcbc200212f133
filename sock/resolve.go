package sock

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"syscall"
)

const (
	familyInet   = syscall.AF_INET
	familyInet6  = syscall.AF_INET6
	streamSocket = syscall.SOCK_STREAM
	protoTCP     = syscall.IPPROTO_TCP
)

// Candidate 为解析得到的一个候选端点。
type Candidate struct {
	Family   int
	SockType int
	Protocol int
	IP       net.IP
	Port     int
	Zone     string
}

func (c Candidate) String() string {
	host := c.IP.String()
	if c.Zone != "" {
		host += "%" + c.Zone
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Network 返回 "tcp4" 或 "tcp6"。
func (c Candidate) Network() string {
	if c.Family == familyInet6 {
		return "tcp6"
	}
	return "tcp4"
}

func newCandidate(ip net.IP, zone string, port int) Candidate {
	c := Candidate{SockType: streamSocket, Protocol: protoTCP, Port: port, Zone: zone}
	if v4 := ip.To4(); v4 != nil {
		c.Family = familyInet
		c.IP = v4
	} else {
		c.Family = familyInet6
		c.IP = ip.To16()
	}
	return c
}

func lookupPort(ctx context.Context, host, port string) (int, error) {
	if port == "" {
		return 0, &ResolutionError{Host: host, Port: port, Err: &net.AddrError{Err: "missing port", Addr: port}}
	}
	p, err := net.DefaultResolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return 0, &ResolutionError{Host: host, Port: port, Err: err}
	}
	return p, nil
}

// ResolveListening 返回监听用的通配地址：先 IPv4 再 IPv6，与常见 getaddrinfo(AI_PASSIVE) 的顺序一致。
func ResolveListening(ctx context.Context, port string) ([]Candidate, error) {
	p, err := lookupPort(ctx, "", port)
	if err != nil {
		return nil, err
	}
	return []Candidate{
		newCandidate(net.IPv4zero, "", p),
		newCandidate(net.IPv6unspecified, "", p),
	}, nil
}

// ResolveConnecting 按解析器给出的顺序返回 host:port 的候选地址，不做重排。
// host 为空时返回本机回环地址。
func ResolveConnecting(ctx context.Context, host, port string) ([]Candidate, error) {
	p, err := lookupPort(ctx, host, port)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return []Candidate{
			newCandidate(net.IPv4(127, 0, 0, 1), "", p),
			newCandidate(net.IPv6loopback, "", p),
		}, nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return []Candidate{newCandidate(net.IP(addr.Unmap().AsSlice()), addr.Zone(), p)}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &ResolutionError{Host: host, Port: port, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &ResolutionError{Host: host, Port: port, Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}}
	}
	cands := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		cands = append(cands, newCandidate(a.IP, a.Zone, p))
	}
	return cands, nil
}
