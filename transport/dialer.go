package transport

import (
	"bufio"
	"encoding/base64"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// DefaultDialTimeout bounds connection setup, including any proxy handshake.
const DefaultDialTimeout = 10 * time.Second

// ProxyConfig describes an optional outbound proxy.
type ProxyConfig struct {
	Type     string `yaml:"type"` // "socks5" or "http"
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Address returns host:port of the proxy.
func (c *ProxyConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Dialer opens the TCP connections that carry streams, directly or through
// a SOCKS5 or HTTP CONNECT proxy.
type Dialer struct {
	dialer    proxy.Dialer
	proxyType string
	timeout   time.Duration
}

// NewDialer returns a dialer. A nil config dials directly.
func NewDialer(config *ProxyConfig, timeout time.Duration) (*Dialer, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	direct := &net.Dialer{Timeout: timeout}
	if config == nil || config.Type == "" || config.Type == "none" {
		return &Dialer{dialer: direct, proxyType: "none", timeout: timeout}, nil
	}

	proxyAddr := config.Address()
	logrus.WithFields(logrus.Fields{
		"function":   "NewDialer",
		"proxy_type": config.Type,
		"proxy_addr": proxyAddr,
	}).Info("Creating proxy dialer")

	var dialer proxy.Dialer
	switch config.Type {
	case "socks5":
		var auth *proxy.Auth
		if config.Username != "" || config.Password != "" {
			auth = &proxy.Auth{User: config.Username, Password: config.Password}
		}
		d, err := proxy.SOCKS5("tcp", proxyAddr, auth, direct)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "NewDialer",
				"proxy_addr": proxyAddr,
				"error":      err.Error(),
			}).Error("Failed to create SOCKS5 dialer")
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		dialer = d

	case "http":
		u := &url.URL{Scheme: "http", Host: proxyAddr}
		if config.Username != "" {
			if config.Password != "" {
				u.User = url.UserPassword(config.Username, config.Password)
			} else {
				u.User = url.User(config.Username)
			}
		}
		dialer = &httpProxyDialer{proxyURL: u, timeout: timeout}

	default:
		return nil, fmt.Errorf("unsupported proxy type: %s (must be 'socks5' or 'http')", config.Type)
	}

	return &Dialer{dialer: dialer, proxyType: config.Type, timeout: timeout}, nil
}

// ProxyType reports "none", "socks5" or "http".
func (d *Dialer) ProxyType() string { return d.proxyType }

// Dial connects to address over TCP.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", address)
	} else {
		conn, err = d.dialer.Dial("tcp", address)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Dialer.Dial",
			"address":    address,
			"proxy_type": d.proxyType,
			"error":      err.Error(),
		}).Error("Failed to dial")
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Dialer.Dial",
		"address":     address,
		"proxy_type":  d.proxyType,
		"local_addr":  conn.LocalAddr().String(),
		"remote_addr": conn.RemoteAddr().String(),
	}).Debug("Connection established")
	return conn, nil
}

// Listen accepts inbound connections on address. Proxies are outbound only.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"address":  l.Addr().String(),
	}).Info("Listening for streams")
	return l, nil
}

// httpProxyDialer implements proxy.Dialer for HTTP CONNECT proxies.
type httpProxyDialer struct {
	proxyURL *url.URL
	timeout  time.Duration
}

func (d *httpProxyDialer) Dial(network, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.DialContext(ctx, network, addr)
}

func (d *httpProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("HTTP CONNECT proxy only supports TCP, got: %s", network)
	}

	var nd net.Dialer
	proxyConn, err := nd.DialContext(ctx, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := proxyConn.SetDeadline(deadline); err != nil {
			proxyConn.Close()
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.proxyURL.User != nil {
		password, _ := d.proxyURL.User.Password()
		credentials := d.proxyURL.User.Username() + ":" + password
		connectReq.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	}

	if err := connectReq.Write(proxyConn); err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		proxyConn.Close()
		return nil, fmt.Errorf("proxy returned non-200 status: %s", resp.Status)
	}
	if err := proxyConn.SetDeadline(time.Time{}); err != nil {
		proxyConn.Close()
		return nil, err
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: proxyConn, r: br}, nil
	}
	return proxyConn, nil
}

// bufferedConn returns bytes the proxy sent right after its response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
