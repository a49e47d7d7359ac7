package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// ServerError is an error reply ("-ERR ...") returned by the server.
type ServerError string

func (e ServerError) Error() string { return string(e) }

type reply struct {
	kind  byte // one of '+', '-', ':', '$', '*'
	data  []byte
	null  bool
	items []reply
}

func (r reply) isOK() bool {
	return r.kind == '+' && string(r.data) == "OK"
}

// respConn speaks RESP2 over a single connection.
type respConn struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRESPConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *respConn {
	return &respConn{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *respConn) close() error {
	return c.conn.Close()
}

// do sends one command and reads its reply. Error replies surface as ServerError.
func (c *respConn) do(args ...[]byte) (reply, error) {
	if err := c.send(args...); err != nil {
		return reply{}, err
	}
	rep, err := c.receive()
	if err != nil {
		return reply{}, err
	}
	if rep.kind == '-' {
		return reply{}, ServerError(rep.data)
	}
	return rep, nil
}

func (c *respConn) send(args ...[]byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	c.w.WriteByte('*')
	c.w.WriteString(strconv.Itoa(len(args)))
	c.w.WriteString("\r\n")
	for _, arg := range args {
		c.w.WriteByte('$')
		c.w.WriteString(strconv.Itoa(len(arg)))
		c.w.WriteString("\r\n")
		c.w.Write(arg)
		c.w.WriteString("\r\n")
	}
	return c.w.Flush()
}

func (c *respConn) receive() (reply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return reply{}, err
	}
	return readReply(c.r)
}

func readReply(r *bufio.Reader) (reply, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return reply{}, err
	}
	line, err := readLine(r)
	if err != nil {
		return reply{}, err
	}

	switch kind {
	case '+', '-', ':':
		return reply{kind: kind, data: line}, nil
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, fmt.Errorf("bulk length: %w", err)
		}
		if size < 0 {
			return reply{kind: kind, null: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return reply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return reply{}, errors.New("bulk string not terminated by CRLF")
		}
		return reply{kind: kind, data: buf[:size]}, nil
	case '*':
		count, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, fmt.Errorf("array length: %w", err)
		}
		if count < 0 {
			return reply{kind: kind, null: true}, nil
		}
		items := make([]reply, 0, count)
		for i := 0; i < count; i++ {
			item, err := readReply(r)
			if err != nil {
				return reply{}, err
			}
			items = append(items, item)
		}
		return reply{kind: kind, items: items}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", kind)
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.New("line not terminated by CRLF")
	}
	return append([]byte(nil), line[:len(line)-2]...), nil
}
