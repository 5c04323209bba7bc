// Package ftptest provides an in-process FTP server for tests.
//
// The server supports just enough of the protocol for jlaffaye/ftp clients:
// login, FEAT, TYPE, EPSV/PASV, CWD, PWD, NLST, RETR and QUIT.
package ftptest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server is a minimal FTP server serving an in-memory file tree.
type Server struct {
	listener net.Listener
	files    map[string]string // absolute path -> content
	dirs     map[string]bool   // absolute directory paths

	wg     sync.WaitGroup
	mu     sync.Mutex
	retrs  []string
	closed bool
}

// NewServer starts a server on a loopback port. Files are keyed by absolute
// path; every parent directory of a file exists implicitly. Extra empty
// directories can be passed in dirs.
func NewServer(tb testing.TB, files map[string]string, dirs ...string) *Server {
	tb.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("ftptest: listen: %v", err)
	}

	s := &Server{
		listener: ln,
		files:    files,
		dirs:     map[string]bool{"/": true},
	}
	for p := range files {
		s.addDir(path.Dir(p))
	}
	for _, d := range dirs {
		s.addDir(path.Clean("/" + d))
	}

	s.wg.Add(1)
	go s.serve()

	return s
}

func (s *Server) addDir(d string) {
	for d != "/" && d != "." {
		s.dirs[d] = true
		d = path.Dir(d)
	}
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns an ftp:// URL for the given absolute path on this server.
func (s *Server) URL(p string) string {
	return "ftp://" + s.Addr() + p
}

// Retrieved returns the absolute paths of every RETR served, in order.
func (s *Server) Retrieved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.retrs))
	copy(out, s.retrs)
	return out
}

// Close stops the server and waits for open connections to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// children lists the immediate entry names of dir, sorted.
func (s *Server) children(dir string) []string {
	seen := make(map[string]bool)
	prefix := strings.TrimSuffix(dir, "/") + "/"
	add := func(p string) {
		if !strings.HasPrefix(p, prefix) {
			return
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" {
			return
		}
		seen[strings.SplitN(rest, "/", 2)[0]] = true
	}
	for p := range s.files {
		add(p)
	}
	for d := range s.dirs {
		add(d)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func resolve(cwd, arg string) string {
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Clean(path.Join(cwd, arg))
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck

	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	writer := bufio.NewWriter(conn)
	reader := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...) //nolint:errcheck
		writer.Flush()                               //nolint:errcheck
	}

	reply("220 ftptest server ready")

	var dataListener net.Listener
	closeData := func() {
		if dataListener != nil {
			dataListener.Close() //nolint:errcheck
			dataListener = nil
		}
	}
	defer closeData()

	// sendData accepts the pending data connection and writes payload to it.
	sendData := func(payload string) {
		if dataListener == nil {
			reply("425 Use PASV first")
			return
		}
		reply("150 Opening data connection")
		dataConn, err := dataListener.Accept()
		if err != nil {
			reply("425 Can't open data connection")
			closeData()
			return
		}
		io.WriteString(dataConn, payload) //nolint:errcheck
		dataConn.Close()                  //nolint:errcheck
		closeData()
		reply("226 Transfer complete")
	}

	cwd := "/"
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(parts[0])
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		switch cmd {
		case "USER", "PASS":
			reply("230 User logged in")

		case "FEAT":
			fmt.Fprintf(writer, "211-Features:\r\n") //nolint:errcheck
			fmt.Fprintf(writer, " UTF8\r\n")         //nolint:errcheck
			reply("211 End")

		case "TYPE":
			reply("200 Type set to %s", arg)

		case "OPTS", "NOOP":
			reply("200 OK")

		case "PWD":
			reply("257 \"%s\" is the current directory", cwd)

		case "CWD":
			target := resolve(cwd, arg)
			if !s.dirs[target] {
				reply("550 %s: No such file or directory", arg)
				continue
			}
			cwd = target
			reply("250 Directory changed to %s", cwd)

		case "CDUP":
			cwd = path.Dir(cwd)
			reply("250 Directory changed to %s", cwd)

		case "EPSV", "PASV":
			closeData()
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			port := dataListener.Addr().(*net.TCPAddr).Port
			if cmd == "EPSV" {
				reply("229 Entering Extended Passive Mode (|||%d|)", port)
			} else {
				reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", port/256, port%256)
			}

		case "NLST":
			target := cwd
			if arg != "" {
				target = resolve(cwd, arg)
			}
			if !s.dirs[target] {
				closeData()
				reply("550 %s: No such file or directory", arg)
				continue
			}
			var sb strings.Builder
			for _, name := range s.children(target) {
				sb.WriteString(name + "\r\n")
			}
			sendData(sb.String())

		case "RETR":
			target := resolve(cwd, arg)
			content, ok := s.files[target]
			if !ok {
				closeData()
				reply("550 File not found")
				continue
			}
			s.mu.Lock()
			s.retrs = append(s.retrs, target)
			s.mu.Unlock()
			sendData(content)

		case "QUIT":
			reply("221 Goodbye")
			return

		default:
			reply("502 Command not implemented")
		}
	}
}
