// +build !darwin

// Package netutil adapts the teacher's localhost-family probe into a small
// test helper: given an ephemeral UDP listener, it reports the loopback
// address (and family) a test peer should dial to reach it.
package netutil

import (
	"fmt"
	"net"
	"strconv"
)

var localhost = determineLocalhost()

func determineLocalhost() string {
	l, err := net.ListenTCP("tcp", nil)
	if err != nil {
		panic(fmt.Sprintf("ListenTCP error: %s", err))
	}
	defer l.Close()
	_, lport, _ := net.SplitHostPort(l.Addr().String())

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
	}()

	lo := make(chan string, 1)
	go func() {
		port, _ := strconv.Atoi(lport)
		if conn, err := net.DialTCP("tcp6", &net.TCPAddr{}, &net.TCPAddr{Port: port}); err == nil {
			conn.Close()
			lo <- "::1"
			return
		}
		if conn, err := net.DialTCP("tcp4", &net.TCPAddr{}, &net.TCPAddr{Port: port}); err == nil {
			conn.Close()
			lo <- "127.0.0.1"
			return
		}
		lo <- "127.0.0.1"
	}()

	return <-lo
}

// LocalSystem rewrites a UDP listener's wildcard local address into a
// dialable loopback address of the correct family.
func LocalSystem(c *net.UDPConn) string {
	_, port, _ := net.SplitHostPort(c.LocalAddr().String())
	return net.JoinHostPort(localhost, port)
}
