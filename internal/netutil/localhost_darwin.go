// +build darwin

package netutil

import "net"

// LocalSystem rewrites a UDP listener's wildcard local address into a
// dialable loopback address. On Darwin c.LocalAddr().String() can fail with
// "no route to host" against a wildcard bind, so this special-cases it the
// way the teacher's conn_darwin.go does.
func LocalSystem(c *net.UDPConn) string {
	_, port, err := net.SplitHostPort(c.LocalAddr().String())
	if err != nil {
		panic(err)
	}
	return "localhost:" + port
}
