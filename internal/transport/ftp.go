package transport

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
)

// FTPClient is a minimal client scoped to the single operation ngit's ftp
// candidate needs: RETR/STOR of one named file over a passive data
// connection (§4.7's "dumb-protocol loose-object PUT/GET"). Built
// directly on net/textproto since no FTP client exists anywhere in the
// retrieved corpus — see DESIGN.md's stdlib justification for this one
// component.
type FTPClient struct {
	ctrl *textproto.Conn
	conn net.Conn
}

// DialFTP opens the control connection and logs in (anonymous if user and
// pass are both empty).
func DialFTP(addr, user, pass string) (*FTPClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: ftp dial %s: %w", addr, err)
	}
	ctrl := textproto.NewConn(conn)
	if _, _, err := ctrl.ReadResponse(220); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("transport: ftp greeting from %s: %w", addr, err)
	}

	c := &FTPClient{ctrl: ctrl, conn: conn}
	if user == "" {
		user = "anonymous"
	}
	if pass == "" {
		pass = "anonymous@"
	}
	if err := c.login(user, pass); err != nil {
		ctrl.Close()
		return nil, err
	}
	return c, nil
}

func (c *FTPClient) login(user, pass string) error {
	id, err := c.ctrl.Cmd("USER %s", user)
	if err != nil {
		return err
	}
	c.ctrl.StartResponse(id)
	code, _, err := c.ctrl.ReadResponse(0)
	c.ctrl.EndResponse(id)
	if err != nil {
		return fmt.Errorf("transport: ftp USER: %w", err)
	}
	if code == 230 {
		return nil
	}
	if code != 331 {
		return fmt.Errorf("%w: ftp USER rejected (code %d)", ErrAuthRequired, code)
	}

	id, err = c.ctrl.Cmd("PASS %s", pass)
	if err != nil {
		return err
	}
	c.ctrl.StartResponse(id)
	code, _, err = c.ctrl.ReadResponse(230)
	c.ctrl.EndResponse(id)
	if err != nil {
		return fmt.Errorf("%w: ftp PASS rejected (code %d)", ErrAuthRequired, code)
	}
	return nil
}

// passive issues PASV and dials the data connection it advertises.
func (c *FTPClient) passive() (net.Conn, error) {
	id, err := c.ctrl.Cmd("PASV")
	if err != nil {
		return nil, err
	}
	c.ctrl.StartResponse(id)
	_, line, err := c.ctrl.ReadResponse(227)
	c.ctrl.EndResponse(id)
	if err != nil {
		return nil, fmt.Errorf("transport: ftp PASV: %w", err)
	}
	host, port, err := parsePASV(line)
	if err != nil {
		return nil, fmt.Errorf("transport: ftp PASV reply %q: %w", line, err)
	}
	data, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("transport: ftp data connection: %w", err)
	}
	return data, nil
}

// parsePASV extracts the (host, port) a "227 Entering Passive Mode
// (h1,h2,h3,h4,p1,p2)" reply advertises.
func parsePASV(line string) (string, int, error) {
	open := strings.IndexByte(line, '(')
	close := strings.IndexByte(line, ')')
	if open < 0 || close < 0 || close < open {
		return "", 0, fmt.Errorf("no parenthesized address found")
	}
	parts := strings.Split(line[open+1:close], ",")
	if len(parts) != 6 {
		return "", 0, fmt.Errorf("expected 6 comma-separated fields, got %d", len(parts))
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return "", 0, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = n
	}
	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port := nums[4]*256 + nums[5]
	return host, port, nil
}

// Retrieve fetches remotePath's full contents over a passive data
// connection.
func (c *FTPClient) Retrieve(remotePath string) ([]byte, error) {
	data, err := c.passive()
	if err != nil {
		return nil, err
	}
	defer data.Close()

	id, err := c.ctrl.Cmd("RETR %s", remotePath)
	if err != nil {
		return nil, err
	}
	c.ctrl.StartResponse(id)
	defer c.ctrl.EndResponse(id)
	if code, msg, err := c.ctrl.ReadResponse(0); err != nil || (code != 150 && code != 125) {
		return nil, fmt.Errorf("%w: ftp RETR %s: code %d %q (err %v)", ErrRepoNotVisible, remotePath, code, msg, err)
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("transport: ftp read %s: %w", remotePath, err)
	}
	if _, _, err := c.ctrl.ReadResponse(226); err != nil {
		return nil, fmt.Errorf("transport: ftp RETR %s completion: %w", remotePath, err)
	}
	return content, nil
}

// Store writes content to remotePath over a passive data connection,
// creating or replacing it.
func (c *FTPClient) Store(remotePath string, content []byte) error {
	data, err := c.passive()
	if err != nil {
		return err
	}
	defer data.Close()

	id, err := c.ctrl.Cmd("STOR %s", remotePath)
	if err != nil {
		return err
	}
	c.ctrl.StartResponse(id)
	defer c.ctrl.EndResponse(id)
	if _, _, err := c.ctrl.ReadResponse(150); err != nil {
		if _, _, err2 := c.ctrl.ReadResponse(125); err2 != nil {
			return fmt.Errorf("%w: ftp STOR %s: %v", ErrPermissionDenied, remotePath, err)
		}
	}

	if _, err := data.Write(content); err != nil {
		return fmt.Errorf("transport: ftp write %s: %w", remotePath, err)
	}
	if err := data.Close(); err != nil {
		return fmt.Errorf("transport: ftp close data conn for %s: %w", remotePath, err)
	}
	if _, _, err := c.ctrl.ReadResponse(226); err != nil {
		return fmt.Errorf("transport: ftp STOR %s completion: %w", remotePath, err)
	}
	return nil
}

// Close ends the FTP session.
func (c *FTPClient) Close() error {
	c.ctrl.Cmd("QUIT")
	return c.ctrl.Close()
}
