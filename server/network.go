package server

import (
	"fmt"
	"net"
	"strconv"
)

// lanIPs returns the IPv4 addresses of interfaces that are up, excluding loopback.
func lanIPs() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

// WebSocketURLs lists the URLs clients can use to reach a server listening
// on addr. A wildcard host expands to localhost plus every LAN address.
func WebSocketURLs(addr net.Addr) []string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil
	}
	port := strconv.Itoa(tcp.Port)

	hosts := []string{tcp.IP.String()}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		hosts = []string{"localhost"}
		if ips, err := lanIPs(); err == nil {
			hosts = append(hosts, ips...)
		}
	}

	urls := make([]string, 0, len(hosts))
	for _, h := range hosts {
		urls = append(urls, fmt.Sprintf("ws://%s%s", net.JoinHostPort(h, port), RouteWebSocket))
	}
	return urls
}
